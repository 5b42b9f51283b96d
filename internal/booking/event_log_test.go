package booking

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventLog(t *testing.T) {
	id := uuid.New()

	ev, err := newEventLog(EventBookingConfirmed, id, map[string]any{"paid": true})
	require.NoError(t, err)
	assert.Equal(t, EventBookingConfirmed, ev.EventType)
	assert.Equal(t, id, *ev.BookingID)
	assert.JSONEq(t, `{"paid":true}`, string(ev.Payload))
}

func TestNewEventLog_UnencodablePayload(t *testing.T) {
	_, err := newEventLog(EventBookingCancelled, uuid.New(), map[string]any{"ch": make(chan int)})

	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)
}
