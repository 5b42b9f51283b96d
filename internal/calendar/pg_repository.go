package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) ListConnections(ctx context.Context) ([]Connection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT resource_id, calendar_id, token
		FROM calendar_connections
		ORDER BY resource_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list calendar connections: %w", err)
	}
	defer rows.Close()

	var out []Connection
	for rows.Next() {
		var (
			c   Connection
			raw []byte
		)
		if err := rows.Scan(&c.ResourceID, &c.CalendarID, &raw); err != nil {
			return nil, fmt.Errorf("scan calendar connection: %w", err)
		}
		c.Token = &oauth2.Token{}
		if err := json.Unmarshal(raw, c.Token); err != nil {
			return nil, fmt.Errorf("decode token for %s: %w", c.ResourceID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PgRepository) SaveToken(ctx context.Context, resourceID uuid.UUID, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE calendar_connections
		SET token = $2, updated_at = now()
		WHERE resource_id = $1
	`, resourceID, raw)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// ReplaceBusy swaps the resource's imported events overlapping [from, to)
// for events in one transaction.
func (r *PgRepository) ReplaceBusy(ctx context.Context, resourceID uuid.UUID, from, to time.Time, events []BusyEvent) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM calendar_busy
			WHERE resource_id = $1
			  AND start_at < $3 AND end_at > $2
		`, resourceID, from, to)
		if err != nil {
			return fmt.Errorf("clear calendar busy: %w", err)
		}

		batch := &pgx.Batch{}
		for _, ev := range events {
			batch.Queue(`
				INSERT INTO calendar_busy (resource_id, external_id, start_at, end_at, synced_at)
				VALUES ($1, $2, $3, $4, now())
			`, resourceID, ev.ExternalID, ev.Start, ev.End)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert calendar busy: %w", err)
		}
		return nil
	})
}
