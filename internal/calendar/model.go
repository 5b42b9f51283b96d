package calendar

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Connection is a resource's linked external calendar.
type Connection struct {
	ResourceID uuid.UUID
	CalendarID string
	Token      *oauth2.Token
}

// BusyEvent is an external commitment imported as a busy interval.
type BusyEvent struct {
	ResourceID uuid.UUID
	ExternalID string
	Start      time.Time
	End        time.Time
}
