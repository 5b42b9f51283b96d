package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrGateway wraps failures talking to the payment provider.
var ErrGateway = errors.New("payment gateway error")

type ChargeStatus string

const (
	StatusPending   ChargeStatus = "pending"
	StatusSucceeded ChargeStatus = "succeeded"
	StatusFailed    ChargeStatus = "failed"
)

// Charge is the provider's view of an authorization.
type Charge struct {
	Reference    string
	Amount       int64
	Currency     string
	Status       ChargeStatus
	Metadata     map[string]string
	AuthorizeURI string
}

type ChargeRequest struct {
	Amount      int64
	Currency    string
	CardToken   string
	ReturnURI   string
	Description string
	Metadata    map[string]string
}

type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	RetrieveCharge(ctx context.Context, reference string) (*Charge, error)
	Refund(ctx context.Context, reference string, amount int64) error
}

// Metadata ties a charge to exactly one slot of one offering.
type Metadata struct {
	OfferingID uuid.UUID
	ProviderID uuid.UUID
	Start      time.Time
	End        time.Time
	Timezone   string
}

func (m Metadata) Map() map[string]string {
	return map[string]string{
		"offering_id": m.OfferingID.String(),
		"provider_id": m.ProviderID.String(),
		"start":       m.Start.UTC().Format(time.RFC3339),
		"end":         m.End.UTC().Format(time.RFC3339),
		"timezone":    m.Timezone,
	}
}

// Matches reports whether got carries exactly the same keys and values.
func (m Metadata) Matches(got map[string]string) bool {
	want := m.Map()
	if len(got) != len(want) {
		return false
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// PlatformFee returns the platform's cut in basis points, rounded down.
func PlatformFee(amount, bps int64) int64 {
	return amount * bps / 10000
}
