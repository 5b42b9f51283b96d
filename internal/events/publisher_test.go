package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	id := uuid.New()

	assert.NoError(t, r.Publish(context.Background(), Event{Type: BookingConfirmed, BookingID: id}))
	assert.NoError(t, r.Publish(context.Background(), Event{Type: PaymentRefunded}))

	assert.Equal(t, []string{BookingConfirmed, PaymentRefunded}, r.Types())

	evs := r.Events()
	evs[0].Type = "mutated"
	assert.Equal(t, BookingConfirmed, r.Events()[0].Type)
	assert.Equal(t, id, r.Events()[0].BookingID)
}

func TestAMQPPublisher_CloseWithoutConnection(t *testing.T) {
	var p AMQPPublisher
	assert.NoError(t, p.Close())
	assert.NoError(t, Noop{}.Close())
}
