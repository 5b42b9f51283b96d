package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/hackgods/slot-booking/internal/logger"
)

type Source interface {
	Busy(ctx context.Context, conn Connection, from, to time.Time) ([]BusyEvent, *oauth2.Token, error)
}

type Repository interface {
	ListConnections(ctx context.Context) ([]Connection, error)
	SaveToken(ctx context.Context, resourceID uuid.UUID, token *oauth2.Token) error
	ReplaceBusy(ctx context.Context, resourceID uuid.UUID, from, to time.Time, events []BusyEvent) error
}

// Syncer copies external calendar events into calendar_busy so the slot
// generator sees them as busy intervals.
type Syncer struct {
	repo    Repository
	source  Source
	horizon time.Duration
	log     *logger.Logger
}

func NewSyncer(repo Repository, source Source, horizon time.Duration, log *logger.Logger) *Syncer {
	return &Syncer{repo: repo, source: source, horizon: horizon, log: log}
}

// RunOnce syncs every connection for [now, now+horizon). A failing connection
// is logged and skipped; the count of synced connections is returned.
func (s *Syncer) RunOnce(ctx context.Context, now time.Time) (int, error) {
	conns, err := s.repo.ListConnections(ctx)
	if err != nil {
		return 0, err
	}

	from := now.UTC().Truncate(time.Minute)
	to := from.Add(s.horizon)

	synced := 0
	for _, conn := range conns {
		if err := s.syncOne(ctx, conn, from, to); err != nil {
			s.log.Warn("calendar sync failed", "resource_id", conn.ResourceID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (s *Syncer) syncOne(ctx context.Context, conn Connection, from, to time.Time) error {
	events, token, err := s.source.Busy(ctx, conn, from, to)
	if err != nil {
		return err
	}
	if err := s.repo.ReplaceBusy(ctx, conn.ResourceID, from, to, events); err != nil {
		return fmt.Errorf("replace busy: %w", err)
	}
	if token != nil && conn.Token != nil && token.AccessToken != conn.Token.AccessToken {
		if err := s.repo.SaveToken(ctx, conn.ResourceID, token); err != nil {
			return err
		}
	}
	s.log.Debug("calendar synced", "resource_id", conn.ResourceID, "events", len(events))
	return nil
}
