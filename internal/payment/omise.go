package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// OmiseGateway talks to Omise. omise.Client keeps the request context as
// client state, so every call gets its own client over a shared transport.
type OmiseGateway struct {
	publicKey  string
	secretKey  string
	httpClient *http.Client
}

// NewOmiseGateway checks the key pair up front. A nil httpClient uses the
// omise-go default transport.
func NewOmiseGateway(publicKey, secretKey string, httpClient *http.Client) (*OmiseGateway, error) {
	if _, err := omise.NewClient(publicKey, secretKey); err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	return &OmiseGateway{publicKey: publicKey, secretKey: secretKey, httpClient: httpClient}, nil
}

func (g *OmiseGateway) do(ctx context.Context, call func(*omise.Client) error) error {
	client, err := omise.NewClient(g.publicKey, g.secretKey)
	if err != nil {
		return err
	}
	if g.httpClient != nil {
		client.Client = g.httpClient
	}
	client.WithContext(ctx)
	return call(client)
}

func (g *OmiseGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	metadata := make(map[string]interface{}, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	ch := &omise.Charge{}
	op := &operations.CreateCharge{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Card:        req.CardToken,
		ReturnURI:   req.ReturnURI,
		Description: req.Description,
		Metadata:    metadata,
	}
	if err := g.do(ctx, func(c *omise.Client) error { return c.Do(ch, op) }); err != nil {
		return nil, fmt.Errorf("%w: create charge: %w", ErrGateway, err)
	}
	return toCharge(ch), nil
}

func (g *OmiseGateway) RetrieveCharge(ctx context.Context, reference string) (*Charge, error) {
	ch := &omise.Charge{}
	if err := g.do(ctx, func(c *omise.Client) error {
		return c.Do(ch, &operations.RetrieveCharge{ChargeID: reference})
	}); err != nil {
		return nil, fmt.Errorf("%w: retrieve charge %s: %w", ErrGateway, reference, err)
	}
	return toCharge(ch), nil
}

func (g *OmiseGateway) Refund(ctx context.Context, reference string, amount int64) error {
	refund := &omise.Refund{}
	op := &operations.CreateRefund{
		ChargeID: reference,
		Amount:   amount,
	}
	if err := g.do(ctx, func(c *omise.Client) error { return c.Do(refund, op) }); err != nil {
		return fmt.Errorf("%w: refund charge %s: %w", ErrGateway, reference, err)
	}
	return nil
}

func toCharge(ch *omise.Charge) *Charge {
	metadata := make(map[string]string, len(ch.Metadata))
	for k, v := range ch.Metadata {
		if s, ok := v.(string); ok {
			metadata[k] = s
		} else {
			metadata[k] = fmt.Sprint(v)
		}
	}

	// omise: pending / successful / failed / expired / reversed
	status := StatusFailed
	switch string(ch.Status) {
	case "successful":
		status = StatusSucceeded
	case "pending":
		status = StatusPending
	}

	return &Charge{
		Reference:    ch.ID,
		Amount:       ch.Amount,
		Currency:     ch.Currency,
		Status:       status,
		Metadata:     metadata,
		AuthorizeURI: ch.AuthorizeURI,
	}
}
