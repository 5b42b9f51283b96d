package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/availability"
	"github.com/hackgods/slot-booking/internal/events"
	"github.com/hackgods/slot-booking/internal/logger"
	redisclient "github.com/hackgods/slot-booking/internal/redis"
)

// MaxSlotRange bounds a single slot listing request.
const MaxSlotRange = 62 * 24 * time.Hour

type CreateRequest struct {
	OfferingID uuid.UUID
	Start      time.Time
	// End is optional. When set it must equal Start plus the offering's duration.
	End          *time.Time
	Timezone     string
	Participants []Participant
	Notes        string
	// Payment is set by payment reconciliation and persisted in the booking
	// transaction.
	Payment *Payment
}

// Quote is a validated, currently free candidate slot. It is advisory.
type Quote struct {
	Offering   *Offering
	Start      time.Time
	End        time.Time
	ResourceID uuid.UUID
}

type Service struct {
	store     Store
	locker    redisclient.Locker
	publisher events.Publisher
	log       *logger.Logger
	now       func() time.Time
}

func NewService(store Store, locker redisclient.Locker, publisher events.Publisher, log *logger.Logger) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     store,
		locker:    locker,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Slots lists the free slots of an offering between from and to.
func (s *Service) Slots(ctx context.Context, offeringID uuid.UUID, from, to time.Time) ([]availability.Slot, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: range end must be after range start", ErrInvalid)
	}
	if to.Sub(from) > MaxSlotRange {
		return nil, fmt.Errorf("%w: range exceeds %s", ErrInvalid, MaxSlotRange)
	}

	offering, windows, err := s.loadAvailability(ctx, s.store, offeringID)
	if err != nil {
		return nil, err
	}
	busy, err := s.store.ListBusy(ctx, offering.ResourceIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("load busy intervals: %w", err)
	}

	return availability.Generate(windows, busy, availability.Options{
		RangeStart: from,
		RangeEnd:   to,
		Duration:   offering.Duration,
		Buffer:     offering.Buffer,
		AdvanceMin: offering.AdvanceMin,
		AdvanceMax: offering.AdvanceMax,
		Now:        s.now(),
	}), nil
}

// Check is the advisory form of the commit-time conflict check. It returns
// the resource that would take the slot.
func (s *Service) Check(ctx context.Context, offeringID uuid.UUID, start, end time.Time) (uuid.UUID, bool, error) {
	offering, windows, err := s.loadAvailability(ctx, s.store, offeringID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if !availability.WithinAdvance(start, s.now(), offering.AdvanceMin, offering.AdvanceMax) {
		return uuid.Nil, false, nil
	}
	busy, err := s.store.ListBusy(ctx, offering.ResourceIDs, start, end)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load busy intervals: %w", err)
	}
	resourceID, ok := availability.NewIndex(windows).Resolve(busy, start, end, offering.Duration, offering.Buffer)
	return resourceID, ok, nil
}

// Quote validates a candidate slot and checks that it is free right now.
// Nothing is reserved.
func (s *Service) Quote(ctx context.Context, offeringID uuid.UUID, start time.Time, timezone string) (*Quote, error) {
	offering, end, err := s.validateSlot(ctx, offeringID, start, nil, timezone)
	if err != nil {
		return nil, err
	}

	resourceID, ok, err := s.Check(ctx, offeringID, start, end)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is not available", ErrConflict, start.UTC().Format(time.RFC3339))
	}
	return &Quote{Offering: offering, Start: start.UTC(), End: end, ResourceID: resourceID}, nil
}

// Create runs the booking protocol: validate outside any transaction, then
// re-check availability and insert inside a serializable transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	log := s.log.With("offering_id", req.OfferingID, "start", req.Start)
	log.Debug("booking attempt", "state", AttemptRequested)

	log.Debug("booking attempt", "state", AttemptValidating)
	offering, end, err := s.validate(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			log.Info("booking attempt", "state", AttemptRejectedInvalid, "reason", err)
		}
		return nil, err
	}
	start := req.Start.UTC()

	var created *Booking
	err = s.locker.WithSlotLock(ctx, redisclient.SlotKey(offering.ID, start), func(lockCtx context.Context) error {
		return s.store.InSerializableTx(lockCtx, func(ctx context.Context, tx Tx) (TxDecision, error) {
			current, windows, err := s.loadAvailability(ctx, tx, offering.ID)
			if err != nil {
				return Rollback, err
			}
			// end was derived from the duration read before the transaction
			if current.Duration != offering.Duration {
				return Rollback, fmt.Errorf("%w: offering %s changed while booking", ErrConflict, offering.ID)
			}
			busy, err := tx.ListBusy(ctx, current.ResourceIDs, start, end)
			if err != nil {
				return Rollback, fmt.Errorf("load busy intervals: %w", err)
			}

			resourceID, ok := availability.NewIndex(windows).Resolve(busy, start, end, current.Duration, current.Buffer)
			if !ok {
				return Rollback, fmt.Errorf("%w: no free resource at %s", ErrConflict, start.Format(time.RFC3339))
			}

			b := &Booking{
				ID:           uuid.New(),
				OfferingID:   offering.ID,
				ResourceID:   resourceID,
				Start:        start,
				End:          end,
				Timezone:     req.Timezone,
				Status:       StatusConfirmed,
				Participants: req.Participants,
				Notes:        strings.TrimSpace(req.Notes),
			}
			if err := tx.InsertBooking(ctx, b); err != nil {
				return Rollback, err
			}
			if req.Payment != nil {
				p := *req.Payment
				p.ID = uuid.New()
				p.BookingID = b.ID
				if err := tx.InsertPayment(ctx, &p); err != nil {
					return Rollback, err
				}
			}
			ev, err := newEventLog(EventBookingConfirmed, b.ID, map[string]any{
				"offering_id": offering.ID.String(),
				"resource_id": resourceID.String(),
				"start":       start,
				"end":         end,
				"paid":        req.Payment != nil,
			})
			if err != nil {
				return Rollback, err
			}
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return Rollback, err
			}

			created = b
			return Commit, nil
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		err = fmt.Errorf("%w: slot is being booked", ErrConflict)
	}
	if err != nil {
		if errors.Is(err, ErrConflict) {
			log.Info("booking attempt", "state", AttemptRejectedConflict, "reason", err)
		}
		return nil, err
	}

	log.Info("booking attempt", "state", AttemptCommitted, "booking_id", created.ID, "resource_id", created.ResourceID)
	s.publish(ctx, events.Event{
		Type:      events.BookingConfirmed,
		BookingID: created.ID,
		Payload: map[string]any{
			"offering_id": created.OfferingID,
			"resource_id": created.ResourceID,
			"start":       created.Start,
			"end":         created.End,
		},
	})
	return created, nil
}

func (s *Service) Offering(ctx context.Context, id uuid.UUID) (*Offering, error) {
	return s.store.GetOffering(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// Cancel moves a confirmed booking to cancelled, freeing its range.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var cancelled *Booking
	err := s.store.InSerializableTx(ctx, func(ctx context.Context, tx Tx) (TxDecision, error) {
		existing, err := tx.GetBooking(ctx, id)
		if err != nil {
			return Rollback, err
		}
		if existing.Status != StatusConfirmed {
			return Rollback, fmt.Errorf("%w: booking %s is %s", ErrInvalid, id, existing.Status)
		}
		b, err := tx.CancelBooking(ctx, id, s.now().UTC())
		if err != nil {
			return Rollback, err
		}
		ev, err := newEventLog(EventBookingCancelled, b.ID, map[string]any{
			"resource_id": b.ResourceID.String(),
		})
		if err != nil {
			return Rollback, err
		}
		if err := tx.InsertEvent(ctx, ev); err != nil {
			return Rollback, err
		}
		cancelled = b
		return Commit, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking cancelled", "booking_id", id)
	s.publish(ctx, events.Event{Type: events.BookingCancelled, BookingID: id})
	return cancelled, nil
}

// PaymentConsumed reports whether a payment reference already produced a booking.
func (s *Service) PaymentConsumed(ctx context.Context, externalRef string) (bool, error) {
	return s.store.PaymentConsumed(ctx, externalRef)
}

// validate applies the checks that run before any transaction opens and
// returns the offering with the slot end.
func (s *Service) validate(ctx context.Context, req CreateRequest) (*Offering, time.Time, error) {
	offering, end, err := s.validateSlot(ctx, req.OfferingID, req.Start, req.End, req.Timezone)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(req.Participants) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: at least one participant is required", ErrInvalid)
	}
	for _, p := range req.Participants {
		if strings.TrimSpace(p.Name) == "" {
			return nil, time.Time{}, fmt.Errorf("%w: participant name is required", ErrInvalid)
		}
	}
	if offering.Paid() && req.Payment == nil {
		return nil, time.Time{}, fmt.Errorf("%w: offering requires payment", ErrInvalid)
	}
	return offering, end, nil
}

func (s *Service) validateSlot(ctx context.Context, offeringID uuid.UUID, start time.Time, requestedEnd *time.Time, timezone string) (*Offering, time.Time, error) {
	offering, err := s.store.GetOffering(ctx, offeringID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(offering.ResourceIDs) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: offering %s has no resources", ErrNotFound, offering.ID)
	}

	if start.IsZero() || !start.Equal(start.Truncate(time.Minute)) {
		return nil, time.Time{}, fmt.Errorf("%w: start must fall on a whole minute", ErrInvalid)
	}
	end := start.UTC().Add(offering.Duration)
	if requestedEnd != nil && !requestedEnd.Equal(end) {
		return nil, time.Time{}, fmt.Errorf("%w: end must be start plus %s", ErrInvalid, offering.Duration)
	}
	if timezone == "" {
		return nil, time.Time{}, fmt.Errorf("%w: timezone is required", ErrInvalid)
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalid, timezone)
	}
	if !availability.WithinAdvance(start, s.now(), offering.AdvanceMin, offering.AdvanceMax) {
		return nil, time.Time{}, fmt.Errorf("%w: start is outside the advance booking bounds", ErrInvalid)
	}
	return offering, end, nil
}

// loadAvailability reads the offering and its normalized windows through r,
// which may be the pool or a transaction.
func (s *Service) loadAvailability(ctx context.Context, r Reader, offeringID uuid.UUID) (*Offering, []availability.Window, error) {
	offering, err := r.GetOffering(ctx, offeringID)
	if err != nil {
		return nil, nil, err
	}
	raw, err := r.ListWindows(ctx, offeringID)
	if err != nil {
		return nil, nil, fmt.Errorf("load windows: %w", err)
	}
	windows := availability.Normalize(raw, offeringID)
	if len(windows) == 0 {
		return nil, nil, fmt.Errorf("%w: offering %s has no availability", ErrNotFound, offeringID)
	}
	return offering, windows, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("publish event failed", "type", ev.Type, "booking_id", ev.BookingID, "error", err)
	}
}

func newEventLog(eventType string, bookingID uuid.UUID, payload map[string]any) (EventLog, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return EventLog{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	id := bookingID
	return EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
	}, nil
}
