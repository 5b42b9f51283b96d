package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidClock = errors.New("invalid HH:MM clock value")

// Window is a recurring weekly open interval for a resource.
// OfferingID is uuid.Nil for the resource's default windows.
type Window struct {
	ResourceID uuid.UUID
	Weekday    time.Weekday
	StartLocal string // "HH:MM"
	EndLocal   string // "HH:MM"
	Timezone   string // IANA id
	OfferingID uuid.UUID
}

// Overnight reports whether the window ends on the next local calendar day.
func (w Window) Overnight() bool {
	start, err1 := ParseClock(w.StartLocal)
	end, err2 := ParseClock(w.EndLocal)
	if err1 != nil || err2 != nil {
		return false
	}
	return end <= start
}

// BusyInterval is an existing commitment. A uuid.Nil ResourceID blocks every resource.
type BusyInterval struct {
	ResourceID uuid.UUID
	Start      time.Time
	End        time.Time
}

func (b BusyInterval) appliesTo(resourceID uuid.UUID) bool {
	return b.ResourceID == uuid.Nil || b.ResourceID == resourceID
}

func (b BusyInterval) overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// Slot is a computed candidate opening. It is never persisted.
type Slot struct {
	ResourceID uuid.UUID `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Options parameterises slot generation.
type Options struct {
	RangeStart time.Time
	RangeEnd   time.Time
	Duration   time.Duration
	Buffer     time.Duration
	AdvanceMin time.Duration
	// AdvanceMax of zero means unbounded.
	AdvanceMax time.Duration
	// Now defaults to time.Now when zero.
	Now time.Time
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// WithinAdvance reports whether start respects the advance-booking bounds relative to now.
func WithinAdvance(start, now time.Time, advanceMin, advanceMax time.Duration) bool {
	if start.Before(now.Add(advanceMin)) {
		return false
	}
	if advanceMax > 0 && start.After(now.Add(advanceMax)) {
		return false
	}
	return true
}

// ParseClock converts "HH:MM" (or Postgres "HH:MM:SS") into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) > 5 {
		s = s[:5]
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}
