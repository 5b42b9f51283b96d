package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/slot-booking/internal/availability"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeExclusionViolation   = "23P01"
	codeUniqueViolation      = "23505"

	constraintPaymentExternalRef = "payments_external_ref_key"
)

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pgQueries
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pgQueries: pgQueries{q: pool}, pool: pool}
}

func (r *PgRepository) InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx Tx) (TxDecision, error)) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin serializable tx: %w", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	decision, err := fn(ctx, &pgTx{pgQueries{q: tx}})
	if err != nil {
		return classifyPgError(err)
	}
	if decision == Rollback {
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (r *PgRepository) PaymentConsumed(ctx context.Context, externalRef string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE external_ref = $1)
	`, externalRef).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment ref: %w", err)
	}
	return exists, nil
}

type pgTx struct {
	pgQueries
}

// classifyPgError folds the storage-level concurrency failures into the
// booking taxonomy. Anything else is returned as is.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeExclusionViolation:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case codeUniqueViolation:
		if pgErr.ConstraintName == constraintPaymentExternalRef {
			return fmt.Errorf("%w: %w", ErrPaymentAlreadyConsumed, err)
		}
	}
	return err
}

type pgQueries struct {
	q queryer
}

func (p pgQueries) GetOffering(ctx context.Context, id uuid.UUID) (*Offering, error) {
	var (
		o                            Offering
		duration, buffer, advanceMin int32
		advanceMax                   *int32
	)
	err := p.q.QueryRow(ctx, `
		SELECT o.id, o.provider_id, o.name,
		       o.slot_duration_minutes, o.slot_buffer_minutes,
		       o.advance_min_minutes, o.advance_max_minutes,
		       o.price_amount, o.currency,
		       COALESCE(array_agg(r.resource_id ORDER BY r.resource_id)
		                FILTER (WHERE r.resource_id IS NOT NULL), '{}')
		FROM offerings o
		LEFT JOIN offering_resources r ON r.offering_id = o.id
		WHERE o.id = $1
		GROUP BY o.id
	`, id).Scan(
		&o.ID,
		&o.ProviderID,
		&o.Name,
		&duration,
		&buffer,
		&advanceMin,
		&advanceMax,
		&o.PriceAmount,
		&o.Currency,
		&o.ResourceIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: offering %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get offering: %w", err)
	}

	o.Duration = minutes(duration)
	o.Buffer = minutes(buffer)
	o.AdvanceMin = minutes(advanceMin)
	if advanceMax != nil {
		o.AdvanceMax = minutes(*advanceMax)
	}
	return &o, nil
}

func (p pgQueries) ListWindows(ctx context.Context, offeringID uuid.UUID) ([]availability.Window, error) {
	rows, err := p.q.Query(ctx, `
		SELECT w.resource_id, w.weekday, w.start_local, w.end_local, w.timezone, w.offering_id
		FROM availability_windows w
		JOIN offering_resources r ON r.resource_id = w.resource_id AND r.offering_id = $1
		WHERE w.offering_id IS NULL OR w.offering_id = $1
		ORDER BY w.resource_id, w.weekday, w.start_local
	`, offeringID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	var out []availability.Window
	for rows.Next() {
		var (
			w        availability.Window
			weekday  int16
			scopedTo *uuid.UUID
		)
		if err := rows.Scan(&w.ResourceID, &weekday, &w.StartLocal, &w.EndLocal, &w.Timezone, &scopedTo); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		w.Weekday = time.Weekday(weekday)
		if scopedTo != nil {
			w.OfferingID = *scopedTo
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return out, nil
}

func (p pgQueries) ListBusy(ctx context.Context, resourceIDs []uuid.UUID, from, to time.Time) ([]availability.BusyInterval, error) {
	rows, err := p.q.Query(ctx, `
		SELECT resource_id, start_at, end_at
		FROM bookings
		WHERE status = 'confirmed'
		  AND (resource_id = ANY($1) OR resource_id IS NULL)
		  AND start_at < $3 AND end_at > $2
		UNION ALL
		SELECT resource_id, start_at, end_at
		FROM calendar_busy
		WHERE (resource_id = ANY($1) OR resource_id IS NULL)
		  AND start_at < $3 AND end_at > $2
	`, resourceIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("list busy: %w", err)
	}
	defer rows.Close()

	var out []availability.BusyInterval
	for rows.Next() {
		var (
			b          availability.BusyInterval
			resourceID *uuid.UUID
		)
		if err := rows.Scan(&resourceID, &b.Start, &b.End); err != nil {
			return nil, fmt.Errorf("scan busy: %w", err)
		}
		if resourceID != nil {
			b.ResourceID = *resourceID
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list busy: %w", err)
	}
	return out, nil
}

const bookingColumns = `id, offering_id, resource_id, start_at, end_at, timezone, status, notes, created_at, updated_at, cancelled_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b          Booking
		resourceID *uuid.UUID
	)
	err := row.Scan(
		&b.ID,
		&b.OfferingID,
		&resourceID,
		&b.Start,
		&b.End,
		&b.Timezone,
		&b.Status,
		&b.Notes,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if resourceID != nil {
		b.ResourceID = *resourceID
	}
	b.Start = b.Start.UTC()
	b.End = b.End.UTC()
	return &b, nil
}

func (p pgQueries) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(p.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b.Participants, err = p.listParticipants(ctx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func (p pgQueries) listParticipants(ctx context.Context, bookingID uuid.UUID) ([]Participant, error) {
	rows, err := p.q.Query(ctx, `
		SELECT name, email
		FROM booking_participants
		WHERE booking_id = $1
		ORDER BY position
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var pt Participant
		if err := rows.Scan(&pt.Name, &pt.Email); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (p pgQueries) InsertBooking(ctx context.Context, b *Booking) error {
	var resourceID *uuid.UUID
	if b.ResourceID != uuid.Nil {
		resourceID = &b.ResourceID
	}

	row := p.q.QueryRow(ctx, `
		INSERT INTO bookings (id, offering_id, resource_id, start_at, end_at, timezone, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, b.ID, b.OfferingID, resourceID, b.Start, b.End, b.Timezone, b.Status, b.Notes)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	for i, pt := range b.Participants {
		_, err := p.q.Exec(ctx, `
			INSERT INTO booking_participants (booking_id, position, name, email)
			VALUES ($1, $2, $3, $4)
		`, b.ID, i, pt.Name, pt.Email)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}

func (p pgQueries) InsertPayment(ctx context.Context, pay *Payment) error {
	err := p.q.QueryRow(ctx, `
		INSERT INTO payments (id, booking_id, external_ref, amount, platform_fee, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`, pay.ID, pay.BookingID, pay.ExternalRef, pay.Amount, pay.PlatformFee, pay.Currency, pay.Status).Scan(&pay.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (p pgQueries) CancelBooking(ctx context.Context, id uuid.UUID, at time.Time) (*Booking, error) {
	b, err := scanBooking(p.q.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
		    cancelled_at = $2,
		    updated_at = $2
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+bookingColumns, id, at))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: booking %s is not confirmed", ErrInvalid, id)
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	if b.Participants, err = p.listParticipants(ctx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func (p pgQueries) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func minutes(n int32) time.Duration {
	return time.Duration(n) * time.Minute
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
