package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/availability"
	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/logger"
	"github.com/hackgods/slot-booking/internal/payment"
)

type BookingService interface {
	Slots(ctx context.Context, offeringID uuid.UUID, from, to time.Time) ([]availability.Slot, error)
	Check(ctx context.Context, offeringID uuid.UUID, start, end time.Time) (uuid.UUID, bool, error)
	Create(ctx context.Context, req booking.CreateRequest) (*booking.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
}

type PaymentService interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	Confirm(ctx context.Context, req payment.ConfirmRequest) (*booking.Booking, error)
}

type handlers struct {
	bookings  BookingService
	payments  PaymentService
	validator *requestValidator
	log       *logger.Logger
}

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	offeringID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC3339 timestamp")
		return
	}

	slots, err := h.bookings.Slots(r.Context(), offeringID, from, to)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	collapsed := availability.Collapse(slots)
	resp := SlotsResponse{
		OfferingID: offeringID,
		From:       from.UTC(),
		To:         to.UTC(),
		Slots:      make([]SlotResponse, 0, len(collapsed)),
	}
	for _, s := range collapsed {
		resp.Slots = append(resp.Slots, SlotResponse{Start: s.Start, End: s.End})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) checkSlot(w http.ResponseWriter, r *http.Request) {
	offeringID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req CheckRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	resourceID, available, err := h.bookings.Check(r.Context(), offeringID, req.Start, req.End)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	resp := CheckResponse{Available: available}
	if available {
		resp.ResourceID = &resourceID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	b, err := h.bookings.Create(r.Context(), booking.CreateRequest{
		OfferingID:   uuid.MustParse(req.OfferingID),
		Start:        req.Start,
		End:          req.End,
		Timezone:     req.Timezone,
		Participants: []booking.Participant{{Name: req.Participant.Name, Email: req.Participant.Email}},
		Notes:        req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.log.Info("booking cancelled by operator", "booking_id", id, "operator", GetSubject(r.Context()))
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *handlers) createIntent(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments_disabled", "payments are not configured")
		return
	}
	var req CreateIntentRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	intent, err := h.payments.CreateIntent(r.Context(), payment.IntentRequest{
		OfferingID: uuid.MustParse(req.OfferingID),
		Start:      req.Start,
		Timezone:   req.Timezone,
		CardToken:  req.CardToken,
		ReturnURI:  req.ReturnURI,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (h *handlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments_disabled", "payments are not configured")
		return
	}
	var req ConfirmPaymentRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	b, err := h.payments.Confirm(r.Context(), payment.ConfirmRequest{
		OfferingID:       uuid.MustParse(req.OfferingID),
		Start:            req.Start,
		Timezone:         req.Timezone,
		PaymentReference: req.PaymentReference,
		Participants:     []booking.Participant{{Name: req.Participant.Name, Email: req.Participant.Email}},
		Notes:            req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
