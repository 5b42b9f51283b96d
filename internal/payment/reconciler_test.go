package payment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/slot-booking/internal/availability"
	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/booking/bookingtest"
	"github.com/hackgods/slot-booking/internal/events"
	"github.com/hackgods/slot-booking/internal/logger"
	"github.com/hackgods/slot-booking/internal/payment"
	redisclient "github.com/hackgods/slot-booking/internal/redis"
)

var (
	now        = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mondayNine = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
)

type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	charges   map[string]*payment.Charge
	refunds   []string
	refundErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{charges: make(map[string]*payment.Charge)}
}

func (g *fakeGateway) CreateCharge(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	ch := &payment.Charge{
		Reference:    fmt.Sprintf("chrg_test_%d", g.seq),
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       payment.StatusPending,
		Metadata:     req.Metadata,
		AuthorizeURI: req.ReturnURI,
	}
	g.charges[ch.Reference] = ch
	out := *ch
	return &out, nil
}

func (g *fakeGateway) RetrieveCharge(_ context.Context, reference string) (*payment.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.charges[reference]
	if !ok {
		return nil, fmt.Errorf("%w: no charge %s", payment.ErrGateway, reference)
	}
	out := *ch
	return &out, nil
}

func (g *fakeGateway) Refund(_ context.Context, reference string, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, reference)
	return nil
}

// settle marks a charge as paid, as the customer completing 3-D Secure would.
func (g *fakeGateway) settle(reference string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges[reference].Status = payment.StatusSucceeded
}

func (g *fakeGateway) tamper(reference string, fn func(ch *payment.Charge)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.charges[reference])
}

type fixture struct {
	store      *bookingtest.Store
	gateway    *fakeGateway
	recorder   *events.Recorder
	reconciler *payment.Reconciler
	offering   booking.Offering
}

func newFixture(t *testing.T, resources int) *fixture {
	t.Helper()

	store := bookingtest.New()
	ids := make([]uuid.UUID, resources)
	for i := range ids {
		ids[i] = uuid.New()
		store.AddWindows(availability.Window{ResourceID: ids[i], Weekday: time.Monday, StartLocal: "09:00", EndLocal: "12:00", Timezone: "UTC"})
	}
	offering := booking.Offering{
		ID:          uuid.New(),
		ProviderID:  uuid.New(),
		Name:        "Deep tissue massage",
		Duration:    time.Hour,
		PriceAmount: 150000,
		Currency:    "THB",
		ResourceIDs: ids,
	}
	store.AddOffering(offering)

	recorder := &events.Recorder{}
	bookings := booking.NewService(store, redisclient.NoopLocker{}, recorder, logger.Nop()).
		WithClock(func() time.Time { return now })
	gateway := newFakeGateway()

	return &fixture{
		store:      store,
		gateway:    gateway,
		recorder:   recorder,
		reconciler: payment.NewReconciler(bookings, gateway, 500, recorder, logger.Nop()),
		offering:   offering,
	}
}

// paidIntent authorizes and settles a charge for the slot.
func (f *fixture) paidIntent(t *testing.T, start time.Time) string {
	t.Helper()
	intent, err := f.reconciler.CreateIntent(context.Background(), payment.IntentRequest{
		OfferingID: f.offering.ID,
		Start:      start,
		Timezone:   "Asia/Bangkok",
		CardToken:  "tokn_test_" + gofakeit.LetterN(8),
	})
	require.NoError(t, err)
	f.gateway.settle(intent.Reference)
	return intent.Reference
}

func (f *fixture) confirm(reference string, start time.Time) (*booking.Booking, error) {
	return f.reconciler.Confirm(context.Background(), payment.ConfirmRequest{
		OfferingID:       f.offering.ID,
		Start:            start,
		Timezone:         "Asia/Bangkok",
		PaymentReference: reference,
		Participants:     []booking.Participant{{Name: gofakeit.Name(), Email: gofakeit.Email()}},
	})
}

func TestCreateIntent_TagsChargeWithSlot(t *testing.T) {
	f := newFixture(t, 1)

	intent, err := f.reconciler.CreateIntent(context.Background(), payment.IntentRequest{
		OfferingID: f.offering.ID,
		Start:      mondayNine,
		Timezone:   "Asia/Bangkok",
		CardToken:  "tokn_test_1",
		ReturnURI:  "https://example.com/return",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(150000), intent.Amount)
	assert.Equal(t, int64(7500), intent.PlatformFee)
	assert.Equal(t, "https://example.com/return", intent.AuthorizeURI)
	assert.Equal(t, mondayNine.Add(time.Hour), intent.End)

	ch, err := f.gateway.RetrieveCharge(context.Background(), intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"offering_id": f.offering.ID.String(),
		"provider_id": f.offering.ProviderID.String(),
		"start":       "2024-03-04T09:00:00Z",
		"end":         "2024-03-04T10:00:00Z",
		"timezone":    "Asia/Bangkok",
	}, ch.Metadata)
	assert.Empty(t, f.store.Bookings())
}

func TestCreateIntent_Rejections(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.reconciler.CreateIntent(ctx, payment.IntentRequest{OfferingID: f.offering.ID, Start: mondayNine, Timezone: "UTC"})
	assert.ErrorIs(t, err, booking.ErrInvalid, "missing card token")

	_, err = f.reconciler.CreateIntent(ctx, payment.IntentRequest{OfferingID: f.offering.ID, Start: now.Add(-time.Hour), Timezone: "UTC", CardToken: "tokn"})
	assert.ErrorIs(t, err, booking.ErrInvalid, "outside advance bounds")

	_, err = f.reconciler.CreateIntent(ctx, payment.IntentRequest{OfferingID: uuid.New(), Start: mondayNine, Timezone: "UTC", CardToken: "tokn"})
	assert.ErrorIs(t, err, booking.ErrNotFound)

	ref := f.paidIntent(t, mondayNine)
	_, err = f.confirm(ref, mondayNine)
	require.NoError(t, err)

	_, err = f.reconciler.CreateIntent(ctx, payment.IntentRequest{OfferingID: f.offering.ID, Start: mondayNine, Timezone: "Asia/Bangkok", CardToken: "tokn"})
	assert.ErrorIs(t, err, booking.ErrConflict, "slot already taken")
}

func TestConfirm_CreatesBookingWithPayment(t *testing.T) {
	f := newFixture(t, 1)
	ref := f.paidIntent(t, mondayNine)

	b, err := f.confirm(ref, mondayNine)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, b.Status)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, ref, payments[0].ExternalRef)
	assert.Equal(t, b.ID, payments[0].BookingID)
	assert.Equal(t, int64(7500), payments[0].PlatformFee)
}

func TestConfirm_ReplayIsAlreadyConsumed(t *testing.T) {
	f := newFixture(t, 2)
	ref := f.paidIntent(t, mondayNine)

	_, err := f.confirm(ref, mondayNine)
	require.NoError(t, err)

	_, err = f.confirm(ref, mondayNine)
	assert.ErrorIs(t, err, booking.ErrPaymentAlreadyConsumed)
	assert.Len(t, f.store.Bookings(), 1)
	assert.Empty(t, f.gateway.refunds)
}

func TestConfirm_Mismatch(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(ch *payment.Charge)
		start  time.Time
	}{
		{name: "different start", start: mondayNine.Add(time.Hour)},
		{name: "not settled", start: mondayNine, tamper: func(ch *payment.Charge) { ch.Status = payment.StatusPending }},
		{name: "amount", start: mondayNine, tamper: func(ch *payment.Charge) { ch.Amount = 100 }},
		{name: "currency", start: mondayNine, tamper: func(ch *payment.Charge) { ch.Currency = "USD" }},
		{name: "other offering", start: mondayNine, tamper: func(ch *payment.Charge) { ch.Metadata["offering_id"] = uuid.NewString() }},
		{name: "extra metadata", start: mondayNine, tamper: func(ch *payment.Charge) { ch.Metadata["coupon"] = "FREE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1)
			ref := f.paidIntent(t, mondayNine)
			if tt.tamper != nil {
				f.gateway.tamper(ref, tt.tamper)
			}

			_, err := f.confirm(ref, tt.start)

			assert.ErrorIs(t, err, booking.ErrPaymentMismatch)
			assert.Empty(t, f.store.Bookings())
		})
	}
}

func TestConfirm_ConflictRefunds(t *testing.T) {
	f := newFixture(t, 1)
	first := f.paidIntent(t, mondayNine)
	second := f.paidIntent(t, mondayNine)

	_, err := f.confirm(first, mondayNine)
	require.NoError(t, err)

	_, err = f.confirm(second, mondayNine)
	assert.ErrorIs(t, err, booking.ErrConflict)
	assert.ErrorIs(t, err, booking.ErrRefunded)
	assert.Equal(t, []string{second}, f.gateway.refunds)
	assert.Contains(t, f.recorder.Types(), events.PaymentRefunded)
}

func TestConfirm_RefundFailureIsDistinct(t *testing.T) {
	f := newFixture(t, 1)
	first := f.paidIntent(t, mondayNine)
	second := f.paidIntent(t, mondayNine)
	f.gateway.refundErr = errors.New("gateway timeout")

	_, err := f.confirm(first, mondayNine)
	require.NoError(t, err)

	_, err = f.confirm(second, mondayNine)
	assert.ErrorIs(t, err, booking.ErrCompensationFailed)
	assert.NotErrorIs(t, err, booking.ErrConflict)
	assert.NotErrorIs(t, err, booking.ErrRefunded)
	assert.Contains(t, f.recorder.Types(), events.PaymentCompensationFailed)
}

func TestConfirm_ConcurrentPaidAttemptsOneBooking(t *testing.T) {
	f := newFixture(t, 1)
	refs := []string{f.paidIntent(t, mondayNine), f.paidIntent(t, mondayNine)}
	f.store.BeforeCommit = barrier(len(refs))

	errs := make([]error, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.confirm(ref, mondayNine)
		}()
	}
	wg.Wait()

	var committed, refunded int
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, booking.ErrRefunded):
			refunded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, refunded)
	assert.Len(t, f.store.Bookings(), 1)
	assert.Len(t, f.gateway.refunds, 1)
}

func TestConfirm_ConcurrentSameReferenceNeverRefunds(t *testing.T) {
	f := newFixture(t, 1)
	ref := f.paidIntent(t, mondayNine)
	f.store.BeforeCommit = barrier(2)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.confirm(ref, mondayNine)
		}()
	}
	wg.Wait()

	var committed, consumed int
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, booking.ErrPaymentAlreadyConsumed):
			consumed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, consumed)
	assert.Len(t, f.store.Bookings(), 1)
	assert.Len(t, f.store.Payments(), 1)
	assert.Empty(t, f.gateway.refunds)
	assert.NotContains(t, f.recorder.Types(), events.PaymentRefunded)
}

func barrier(n int) func() {
	var (
		mu      sync.Mutex
		arrived int
		release = make(chan struct{})
	)
	return func() {
		mu.Lock()
		arrived++
		if arrived == n {
			close(release)
		}
		mu.Unlock()

		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}
}
