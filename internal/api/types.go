package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/booking"
)

type ParticipantRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
}

type CreateBookingRequest struct {
	OfferingID  string             `json:"offering_id" validate:"required,uuid"`
	Start       time.Time          `json:"start" validate:"required"`
	End         *time.Time         `json:"end,omitempty"`
	Timezone    string             `json:"timezone" validate:"required,timezone"`
	Participant ParticipantRequest `json:"participant"`
	Notes       string             `json:"notes,omitempty" validate:"max=2000"`
}

type CheckRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

type CheckResponse struct {
	Available  bool       `json:"available"`
	ResourceID *uuid.UUID `json:"resource_id,omitempty"`
}

type CreateIntentRequest struct {
	OfferingID string    `json:"offering_id" validate:"required,uuid"`
	Start      time.Time `json:"start" validate:"required"`
	Timezone   string    `json:"timezone" validate:"required,timezone"`
	CardToken  string    `json:"card_token" validate:"required"`
	ReturnURI  string    `json:"return_uri,omitempty" validate:"omitempty,url"`
}

type ConfirmPaymentRequest struct {
	OfferingID       string             `json:"offering_id" validate:"required,uuid"`
	Start            time.Time          `json:"start" validate:"required"`
	Timezone         string             `json:"timezone" validate:"required,timezone"`
	PaymentReference string             `json:"payment_reference" validate:"required,max=255"`
	Participant      ParticipantRequest `json:"participant"`
	Notes            string             `json:"notes,omitempty" validate:"max=2000"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SlotsResponse struct {
	OfferingID uuid.UUID      `json:"offering_id"`
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
	Slots      []SlotResponse `json:"slots"`
}

type BookingResponse struct {
	ID           uuid.UUID             `json:"id"`
	OfferingID   uuid.UUID             `json:"offering_id"`
	ResourceID   uuid.UUID             `json:"resource_id"`
	Start        time.Time             `json:"start"`
	End          time.Time             `json:"end"`
	Timezone     string                `json:"timezone"`
	Status       string                `json:"status"`
	Participants []booking.Participant `json:"participants"`
	Notes        string                `json:"notes,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	CancelledAt  *time.Time            `json:"cancelled_at,omitempty"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:           b.ID,
		OfferingID:   b.OfferingID,
		ResourceID:   b.ResourceID,
		Start:        b.Start,
		End:          b.End,
		Timezone:     b.Timezone,
		Status:       string(b.Status),
		Participants: b.Participants,
		Notes:        b.Notes,
		CreatedAt:    b.CreatedAt,
		CancelledAt:  b.CancelledAt,
	}
}

type ErrorResponse struct {
	Error   string       `json:"error"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
