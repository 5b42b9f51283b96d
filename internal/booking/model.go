package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// AttemptState tracks one booking attempt through the coordinator.
type AttemptState string

const (
	AttemptRequested        AttemptState = "requested"
	AttemptValidating       AttemptState = "validating"
	AttemptCommitted        AttemptState = "committed"
	AttemptRejectedConflict AttemptState = "rejected_conflict"
	AttemptRejectedInvalid  AttemptState = "rejected_invalid"
)

const (
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingCancelled = "BOOKING_CANCELLED"
)

type Offering struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Name       string
	Duration   time.Duration
	Buffer     time.Duration
	AdvanceMin time.Duration
	AdvanceMax time.Duration // zero means unbounded
	// PriceAmount is in the currency's smallest unit.
	PriceAmount int64
	Currency    string
	ResourceIDs []uuid.UUID
}

// Paid reports whether bookings for the offering must go through payment.
func (o Offering) Paid() bool {
	return o.PriceAmount > 0
}

type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Booking struct {
	ID           uuid.UUID     `json:"id"`
	OfferingID   uuid.UUID     `json:"offering_id"`
	ResourceID   uuid.UUID     `json:"resource_id"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	Timezone     string        `json:"timezone"`
	Status       Status        `json:"status"`
	Participants []Participant `json:"participants"`
	Notes        string        `json:"notes,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
}

// Payment links a settled external charge to the booking it paid for.
type Payment struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	ExternalRef string
	Amount      int64
	PlatformFee int64
	Currency    string
	Status      string
	CreatedAt   time.Time
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
