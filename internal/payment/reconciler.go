package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/events"
	"github.com/hackgods/slot-booking/internal/logger"
)

// Bookings is the part of the booking service payment reconciliation drives.
type Bookings interface {
	Offering(ctx context.Context, id uuid.UUID) (*booking.Offering, error)
	Quote(ctx context.Context, offeringID uuid.UUID, start time.Time, timezone string) (*booking.Quote, error)
	Create(ctx context.Context, req booking.CreateRequest) (*booking.Booking, error)
	PaymentConsumed(ctx context.Context, externalRef string) (bool, error)
}

type IntentRequest struct {
	OfferingID uuid.UUID
	Start      time.Time
	Timezone   string
	CardToken  string
	ReturnURI  string
}

// Intent is the handle returned after authorization was requested. No booking
// exists yet.
type Intent struct {
	Reference    string       `json:"payment_reference"`
	AuthorizeURI string       `json:"authorize_uri,omitempty"`
	Status       ChargeStatus `json:"status"`
	Amount       int64        `json:"amount"`
	PlatformFee  int64        `json:"platform_fee"`
	Currency     string       `json:"currency"`
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
}

type ConfirmRequest struct {
	OfferingID       uuid.UUID
	Start            time.Time
	Timezone         string
	PaymentReference string
	Participants     []booking.Participant
	Notes            string
}

type Reconciler struct {
	bookings  Bookings
	gateway   Gateway
	feeBps    int64
	publisher events.Publisher
	log       *logger.Logger
}

func NewReconciler(bookings Bookings, gateway Gateway, feeBps int64, publisher events.Publisher, log *logger.Logger) *Reconciler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{
		bookings:  bookings,
		gateway:   gateway,
		feeBps:    feeBps,
		publisher: publisher,
		log:       log,
	}
}

// CreateIntent checks the slot is currently bookable and asks the gateway to
// authorize the offering's price, tagging the charge with the slot.
func (r *Reconciler) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if strings.TrimSpace(req.CardToken) == "" {
		return nil, fmt.Errorf("%w: card token is required", booking.ErrInvalid)
	}

	q, err := r.bookings.Quote(ctx, req.OfferingID, req.Start, req.Timezone)
	if err != nil {
		return nil, err
	}
	if !q.Offering.Paid() {
		return nil, fmt.Errorf("%w: offering %s is free", booking.ErrInvalid, q.Offering.ID)
	}

	meta := Metadata{
		OfferingID: q.Offering.ID,
		ProviderID: q.Offering.ProviderID,
		Start:      q.Start,
		End:        q.End,
		Timezone:   req.Timezone,
	}
	ch, err := r.gateway.CreateCharge(ctx, ChargeRequest{
		Amount:      q.Offering.PriceAmount,
		Currency:    q.Offering.Currency,
		CardToken:   req.CardToken,
		ReturnURI:   req.ReturnURI,
		Description: fmt.Sprintf("%s %s", q.Offering.Name, q.Start.Format(time.RFC3339)),
		Metadata:    meta.Map(),
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("payment intent created", "reference", ch.Reference, "offering_id", q.Offering.ID, "start", q.Start)
	return &Intent{
		Reference:    ch.Reference,
		AuthorizeURI: ch.AuthorizeURI,
		Status:       ch.Status,
		Amount:       q.Offering.PriceAmount,
		PlatformFee:  PlatformFee(q.Offering.PriceAmount, r.feeBps),
		Currency:     q.Offering.Currency,
		Start:        q.Start,
		End:          q.End,
	}, nil
}

// Confirm turns a succeeded charge into a booking. A charge whose slot was
// taken in the meantime is refunded.
func (r *Reconciler) Confirm(ctx context.Context, req ConfirmRequest) (*booking.Booking, error) {
	log := r.log.With("reference", req.PaymentReference, "offering_id", req.OfferingID, "start", req.Start)

	if strings.TrimSpace(req.PaymentReference) == "" {
		return nil, fmt.Errorf("%w: payment reference is required", booking.ErrInvalid)
	}
	consumed, err := r.bookings.PaymentConsumed(ctx, req.PaymentReference)
	if err != nil {
		return nil, err
	}
	if consumed {
		return nil, fmt.Errorf("%w: %s", booking.ErrPaymentAlreadyConsumed, req.PaymentReference)
	}

	offering, err := r.bookings.Offering(ctx, req.OfferingID)
	if err != nil {
		return nil, err
	}
	ch, err := r.gateway.RetrieveCharge(ctx, req.PaymentReference)
	if err != nil {
		return nil, err
	}
	if err := verify(ch, offering, req); err != nil {
		log.Warn("payment rejected", "error", err)
		return nil, err
	}

	b, err := r.bookings.Create(ctx, booking.CreateRequest{
		OfferingID:   req.OfferingID,
		Start:        req.Start,
		Timezone:     req.Timezone,
		Participants: req.Participants,
		Notes:        req.Notes,
		Payment: &booking.Payment{
			ExternalRef: ch.Reference,
			Amount:      ch.Amount,
			PlatformFee: PlatformFee(ch.Amount, r.feeBps),
			Currency:    offering.Currency,
			Status:      string(ch.Status),
		},
	})
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, booking.ErrConflict) {
		return nil, err
	}

	// A concurrent confirmation of the same charge may have committed first.
	// Its booking owns the money, so nothing is refunded.
	consumed, cerr := r.bookings.PaymentConsumed(context.WithoutCancel(ctx), ch.Reference)
	if cerr != nil {
		log.Error("consumed check after conflict failed, refund withheld", "error", cerr)
		return nil, fmt.Errorf("%w: charge %s: consumed check: %v", booking.ErrCompensationFailed, ch.Reference, cerr)
	}
	if consumed {
		log.Info("charge consumed by a concurrent confirmation")
		return nil, fmt.Errorf("%w: %s", booking.ErrPaymentAlreadyConsumed, ch.Reference)
	}

	return nil, r.compensate(ctx, log, ch)
}

func (r *Reconciler) compensate(ctx context.Context, log *logger.Logger, ch *Charge) error {
	// the refund must not be abandoned because the caller went away
	ctx = context.WithoutCancel(ctx)
	payload := map[string]any{"reference": ch.Reference, "amount": ch.Amount, "currency": ch.Currency}

	if err := r.gateway.Refund(ctx, ch.Reference, ch.Amount); err != nil {
		log.Error("refund after conflict failed", "error", err)
		r.publish(ctx, events.Event{Type: events.PaymentCompensationFailed, Payload: payload})
		return fmt.Errorf("%w: charge %s: %v", booking.ErrCompensationFailed, ch.Reference, err)
	}

	log.Info("slot taken after payment, charge refunded")
	r.publish(ctx, events.Event{Type: events.PaymentRefunded, Payload: payload})
	return fmt.Errorf("%w: %w", booking.ErrConflict, booking.ErrRefunded)
}

func verify(ch *Charge, offering *booking.Offering, req ConfirmRequest) error {
	if ch.Status != StatusSucceeded {
		return fmt.Errorf("%w: charge status is %s", booking.ErrPaymentMismatch, ch.Status)
	}
	if ch.Amount != offering.PriceAmount {
		return fmt.Errorf("%w: amount %d, want %d", booking.ErrPaymentMismatch, ch.Amount, offering.PriceAmount)
	}
	// gateways report currency codes in lower case
	if !strings.EqualFold(ch.Currency, offering.Currency) {
		return fmt.Errorf("%w: currency %s, want %s", booking.ErrPaymentMismatch, ch.Currency, offering.Currency)
	}
	want := Metadata{
		OfferingID: offering.ID,
		ProviderID: offering.ProviderID,
		Start:      req.Start,
		End:        req.Start.Add(offering.Duration),
		Timezone:   req.Timezone,
	}
	if !want.Matches(ch.Metadata) {
		return fmt.Errorf("%w: charge was authorized for a different slot", booking.ErrPaymentMismatch)
	}
	return nil
}

func (r *Reconciler) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = time.Now().UTC()
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.log.Warn("publish event failed", "type", ev.Type, "error", err)
	}
}
