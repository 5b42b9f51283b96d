package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/availability"
)

// TxDecision is returned by a transactional function to tell the store
// whether to commit or roll back.
type TxDecision int

const (
	Commit TxDecision = iota
	Rollback
)

// Reader holds the reads shared by the pool and a transaction. Inside a
// transaction they take part in its isolation.
type Reader interface {
	GetOffering(ctx context.Context, id uuid.UUID) (*Offering, error)
	// ListWindows returns the default windows of the offering's resources
	// together with windows scoped to the offering.
	ListWindows(ctx context.Context, offeringID uuid.UUID) ([]availability.Window, error)
	// ListBusy returns confirmed bookings and external calendar events that
	// overlap [from, to) for the given resources, plus unattributed ones.
	ListBusy(ctx context.Context, resourceIDs []uuid.UUID, from, to time.Time) ([]availability.BusyInterval, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
}

type Tx interface {
	Reader
	InsertBooking(ctx context.Context, b *Booking) error
	InsertPayment(ctx context.Context, p *Payment) error
	CancelBooking(ctx context.Context, id uuid.UUID, at time.Time) (*Booking, error)
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Store is the booking repository. InSerializableTx runs fn at the strictest
// isolation level. fn returning an error or Rollback rolls back; the error is
// returned unchanged apart from storage conflicts, which become ErrConflict
// or ErrPaymentAlreadyConsumed.
type Store interface {
	Reader
	PaymentConsumed(ctx context.Context, externalRef string) (bool, error)
	InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx Tx) (TxDecision, error)) error
}
