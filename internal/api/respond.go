package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/logger"
	"github.com/hackgods/slot-booking/internal/payment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the booking and payment error taxonomy onto HTTP.
// Order matters: the refunded conflict also matches ErrConflict.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrCompensationFailed):
		log.Error("compensation failed, manual reconciliation required", "error", err)
		writeError(w, http.StatusBadGateway, "compensation_failed", "slot was taken and the refund did not complete; support has been notified")
	case errors.Is(err, booking.ErrRefunded):
		writeError(w, http.StatusConflict, "slot_unavailable_refunded", "slot was taken by another booking; the payment has been refunded")
	case errors.Is(err, booking.ErrPaymentAlreadyConsumed):
		writeError(w, http.StatusConflict, "payment_already_consumed", err.Error())
	case errors.Is(err, booking.ErrPaymentMismatch):
		writeError(w, http.StatusPaymentRequired, "payment_mismatch", err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
	case errors.Is(err, booking.ErrConflict):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is no longer available, please pick another")
	case errors.Is(err, payment.ErrGateway):
		log.Warn("payment gateway error", "error", err)
		writeError(w, http.StatusBadGateway, "payment_gateway_error", "payment provider unavailable, please retry")
	default:
		log.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// requestValidator runs struct tag validation on request bodies.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

func (v *requestValidator) check(req any) []FieldError {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fieldPath(fe.Namespace()), Message: fieldMessage(fe)})
	}
	return out
}

// decodeAndValidate writes the error response itself and reports whether the
// handler should continue.
func (v *requestValidator) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if fields := v.check(dst); len(fields) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid_request", Fields: fields})
		return false
	}
	return true
}

// fieldPath drops the top-level struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "timezone":
		return "must be an IANA timezone"
	case "url":
		return "must be a valid URL"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
