package booking

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalid                = errors.New("invalid booking request")
	ErrConflict               = errors.New("slot unavailable")
	ErrPaymentMismatch        = errors.New("payment does not match booking")
	ErrPaymentAlreadyConsumed = errors.New("payment already consumed")

	// ErrRefunded is joined with ErrConflict when a paid attempt lost the
	// slot and the charge was refunded.
	ErrRefunded = errors.New("payment refunded")

	// ErrCompensationFailed means a paid attempt lost the slot and the refund
	// did not go through. It never matches ErrConflict.
	ErrCompensationFailed = errors.New("conflict after payment and refund failed")
)
