// Package bookingtest provides an in-memory booking.Store with snapshot
// isolation so concurrency properties can be tested without Postgres.
package bookingtest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/availability"
	"github.com/hackgods/slot-booking/internal/booking"
)

// Store keeps committed state behind a mutex. Each transaction reads from a
// snapshot taken at begin and buffers its writes. At commit it fails with
// booking.ErrConflict when a booking committed after its snapshot overlaps a
// range it read (a serialization failure), or when a new booking overlaps a
// confirmed one on the same resource (the exclusion constraint).
type Store struct {
	mu        sync.Mutex
	version   int64
	offerings map[uuid.UUID]booking.Offering
	windows   []availability.Window
	external  []availability.BusyInterval
	bookings  map[uuid.UUID]committedBooking
	payments  map[string]booking.Payment
	events    []booking.EventLog

	// BeforeCommit, when set, runs after the transactional function decided
	// to commit and before the commit checks. Tests use it to line up
	// concurrent transactions.
	BeforeCommit func()
}

type committedBooking struct {
	booking.Booking
	version int64
}

func New() *Store {
	return &Store{
		offerings: make(map[uuid.UUID]booking.Offering),
		bookings:  make(map[uuid.UUID]committedBooking),
		payments:  make(map[string]booking.Payment),
	}
}

func (s *Store) AddOffering(o booking.Offering) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offerings[o.ID] = o
}

func (s *Store) AddWindows(windows ...availability.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, windows...)
}

// AddExternalBusy records an external calendar commitment.
func (s *Store) AddExternalBusy(busy ...availability.BusyInterval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.external = append(s.external, busy...)
}

// Bookings returns every stored booking ordered by start.
func (s *Store) Bookings() []booking.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]booking.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b.Booking)
	}
	slices.SortFunc(out, func(a, b booking.Booking) int { return a.Start.Compare(b.Start) })
	return out
}

func (s *Store) Payments() []booking.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]booking.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	return out
}

func (s *Store) Events() []booking.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *Store) GetOffering(ctx context.Context, id uuid.UUID) (*booking.Offering, error) {
	return s.snapshot().GetOffering(ctx, id)
}

func (s *Store) ListWindows(ctx context.Context, offeringID uuid.UUID) ([]availability.Window, error) {
	return s.snapshot().ListWindows(ctx, offeringID)
}

func (s *Store) ListBusy(ctx context.Context, resourceIDs []uuid.UUID, from, to time.Time) ([]availability.BusyInterval, error) {
	return s.snapshot().ListBusy(ctx, resourceIDs, from, to)
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return s.snapshot().GetBooking(ctx, id)
}

func (s *Store) PaymentConsumed(_ context.Context, externalRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.payments[externalRef]
	return ok, nil
}

func (s *Store) InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) (booking.TxDecision, error)) error {
	tx := s.snapshot()

	decision, err := fn(ctx, tx)
	if err != nil || decision == booking.Rollback {
		return err
	}

	if s.BeforeCommit != nil {
		s.BeforeCommit()
	}
	return s.commit(tx)
}

func (s *Store) snapshot() *memTx {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookings := make(map[uuid.UUID]booking.Booking, len(s.bookings))
	for id, b := range s.bookings {
		bookings[id] = b.Booking
	}
	offerings := make(map[uuid.UUID]booking.Offering, len(s.offerings))
	for id, o := range s.offerings {
		offerings[id] = o
	}
	payments := make(map[string]struct{}, len(s.payments))
	for ref := range s.payments {
		payments[ref] = struct{}{}
	}
	return &memTx{
		version:   s.version,
		offerings: offerings,
		windows:   slices.Clone(s.windows),
		external:  slices.Clone(s.external),
		bookings:  bookings,
		payments:  payments,
	}
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bookings {
		if b.version <= tx.version {
			continue
		}
		for _, r := range tx.reads {
			if r.covers(b.Booking) {
				return fmt.Errorf("%w: could not serialize access due to concurrent update", booking.ErrConflict)
			}
		}
		if _, touched := tx.updated[b.ID]; touched {
			return fmt.Errorf("%w: could not serialize access due to concurrent update", booking.ErrConflict)
		}
	}

	for _, nb := range tx.inserted {
		for _, b := range s.bookings {
			if b.Status == booking.StatusConfirmed && b.ResourceID == nb.ResourceID &&
				b.Start.Before(nb.End) && b.End.After(nb.Start) {
				return fmt.Errorf("%w: conflicting key value violates exclusion constraint", booking.ErrConflict)
			}
		}
	}
	for _, p := range tx.newPayments {
		if _, dup := s.payments[p.ExternalRef]; dup {
			return fmt.Errorf("%w: %s", booking.ErrPaymentAlreadyConsumed, p.ExternalRef)
		}
	}

	s.version++
	for _, b := range tx.inserted {
		s.bookings[b.ID] = committedBooking{Booking: b, version: s.version}
	}
	for id := range tx.updated {
		s.bookings[id] = committedBooking{Booking: tx.bookings[id], version: s.version}
	}
	for _, p := range tx.newPayments {
		s.payments[p.ExternalRef] = p
	}
	s.events = append(s.events, tx.newEvents...)
	return nil
}

// busyRead is a predicate read recorded for serialization checks.
type busyRead struct {
	resources []uuid.UUID
	from, to  time.Time
}

func (r busyRead) covers(b booking.Booking) bool {
	if !b.Start.Before(r.to) || !b.End.After(r.from) {
		return false
	}
	return b.ResourceID == uuid.Nil || slices.Contains(r.resources, b.ResourceID)
}

type memTx struct {
	version   int64
	offerings map[uuid.UUID]booking.Offering
	windows   []availability.Window
	external  []availability.BusyInterval
	bookings  map[uuid.UUID]booking.Booking
	payments  map[string]struct{}

	reads       []busyRead
	inserted    []booking.Booking
	updated     map[uuid.UUID]struct{}
	newPayments []booking.Payment
	newEvents   []booking.EventLog
}

func (t *memTx) GetOffering(_ context.Context, id uuid.UUID) (*booking.Offering, error) {
	o, ok := t.offerings[id]
	if !ok {
		return nil, fmt.Errorf("%w: offering %s", booking.ErrNotFound, id)
	}
	o.ResourceIDs = slices.Clone(o.ResourceIDs)
	return &o, nil
}

func (t *memTx) ListWindows(_ context.Context, offeringID uuid.UUID) ([]availability.Window, error) {
	o, ok := t.offerings[offeringID]
	if !ok {
		return nil, nil
	}
	var out []availability.Window
	for _, w := range t.windows {
		if !slices.Contains(o.ResourceIDs, w.ResourceID) {
			continue
		}
		if w.OfferingID == uuid.Nil || w.OfferingID == offeringID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (t *memTx) ListBusy(_ context.Context, resourceIDs []uuid.UUID, from, to time.Time) ([]availability.BusyInterval, error) {
	t.reads = append(t.reads, busyRead{resources: slices.Clone(resourceIDs), from: from, to: to})

	applies := func(id uuid.UUID) bool {
		return id == uuid.Nil || slices.Contains(resourceIDs, id)
	}
	var out []availability.BusyInterval
	for _, b := range t.bookings {
		if b.Status != booking.StatusConfirmed || !applies(b.ResourceID) {
			continue
		}
		if b.Start.Before(to) && b.End.After(from) {
			out = append(out, availability.BusyInterval{ResourceID: b.ResourceID, Start: b.Start, End: b.End})
		}
	}
	for _, b := range t.external {
		if applies(b.ResourceID) && b.Start.Before(to) && b.End.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) GetBooking(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, ok := t.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
	}
	b.Participants = slices.Clone(b.Participants)
	return &b, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *booking.Booking) error {
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	stored := *b
	stored.Participants = slices.Clone(b.Participants)
	t.bookings[b.ID] = stored
	t.inserted = append(t.inserted, stored)
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, p *booking.Payment) error {
	if _, dup := t.payments[p.ExternalRef]; dup {
		return fmt.Errorf("%w: %s", booking.ErrPaymentAlreadyConsumed, p.ExternalRef)
	}
	p.CreatedAt = time.Now().UTC()
	t.payments[p.ExternalRef] = struct{}{}
	t.newPayments = append(t.newPayments, *p)
	return nil
}

func (t *memTx) CancelBooking(_ context.Context, id uuid.UUID, at time.Time) (*booking.Booking, error) {
	b, ok := t.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
	}
	if b.Status != booking.StatusConfirmed {
		return nil, fmt.Errorf("%w: booking %s is not confirmed", booking.ErrInvalid, id)
	}
	b.Status = booking.StatusCancelled
	b.CancelledAt = &at
	b.UpdatedAt = at
	t.bookings[id] = b
	if t.updated == nil {
		t.updated = make(map[uuid.UUID]struct{})
	}
	t.updated[id] = struct{}{}
	out := b
	return &out, nil
}

func (t *memTx) InsertEvent(_ context.Context, ev booking.EventLog) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	t.newEvents = append(t.newEvents, ev)
	return nil
}
