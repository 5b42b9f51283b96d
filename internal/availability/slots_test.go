package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-03-01 is a Friday, 2024-03-04 a Monday.
var (
	friday  = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	monday  = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	longAgo = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func starts(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.UTC().Format(time.RFC3339))
	}
	return out
}

func TestGenerate_OvernightWindowSpansIntoNextDay(t *testing.T) {
	resource := uuid.New()
	windows := []Window{{
		ResourceID: resource,
		Weekday:    time.Friday,
		StartLocal: "22:00",
		EndLocal:   "02:00",
		Timezone:   "UTC",
	}}

	slots := Generate(windows, nil, Options{
		RangeStart: friday,
		RangeEnd:   friday.Add(48 * time.Hour),
		Duration:   time.Hour,
		Now:        longAgo,
	})

	assert.Equal(t, []string{
		"2024-03-01T22:00:00Z",
		"2024-03-01T23:00:00Z",
		"2024-03-02T00:00:00Z",
		"2024-03-02T01:00:00Z",
	}, starts(slots))
	for _, s := range slots {
		assert.Equal(t, resource, s.ResourceID)
		assert.Equal(t, time.Hour, s.End.Sub(s.Start))
	}
}

func TestGenerate_BufferStepping(t *testing.T) {
	windows := []Window{{
		ResourceID: uuid.New(),
		Weekday:    time.Monday,
		StartLocal: "09:00",
		EndLocal:   "12:00",
		Timezone:   "UTC",
	}}

	slots := Generate(windows, nil, Options{
		RangeStart: monday,
		RangeEnd:   monday.Add(24 * time.Hour),
		Duration:   time.Hour,
		Buffer:     15 * time.Minute,
		Now:        longAgo,
	})

	assert.Equal(t, []string{"2024-03-04T09:00:00Z", "2024-03-04T10:15:00Z"}, starts(slots))
}

func TestGenerate_TimezonesProduceOffsetInstantsSortedByUTC(t *testing.T) {
	la, ny := uuid.New(), uuid.New()
	windows := []Window{
		{ResourceID: la, Weekday: time.Monday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "America/Los_Angeles"},
		{ResourceID: ny, Weekday: time.Monday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "America/New_York"},
	}

	slots := Generate(windows, nil, Options{
		RangeStart: monday,
		RangeEnd:   monday.Add(36 * time.Hour),
		Duration:   time.Hour,
		Now:        longAgo,
	})

	require.Len(t, slots, 2)
	assert.Equal(t, ny, slots[0].ResourceID)
	assert.Equal(t, "2024-03-04T14:00:00Z", slots[0].Start.Format(time.RFC3339))
	assert.Equal(t, la, slots[1].ResourceID)
	assert.Equal(t, "2024-03-04T17:00:00Z", slots[1].Start.Format(time.RFC3339))
}

func TestGenerate_NegativeOffsetUsesLocalDates(t *testing.T) {
	// Monday 20:00 in Los Angeles is Tuesday 04:00 UTC.
	windows := []Window{{
		ResourceID: uuid.New(),
		Weekday:    time.Monday,
		StartLocal: "20:00",
		EndLocal:   "21:00",
		Timezone:   "America/Los_Angeles",
	}}
	tuesday := monday.Add(24 * time.Hour)

	slots := Generate(windows, nil, Options{
		RangeStart: tuesday,
		RangeEnd:   tuesday.Add(12 * time.Hour),
		Duration:   time.Hour,
		Now:        longAgo,
	})

	assert.Equal(t, []string{"2024-03-05T04:00:00Z"}, starts(slots))
}

func TestGenerate_AcrossDaylightSavingTransition(t *testing.T) {
	// New York moves to EDT on 2024-03-10.
	resource := uuid.New()
	windows := []Window{
		{ResourceID: resource, Weekday: time.Saturday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "America/New_York"},
		{ResourceID: resource, Weekday: time.Sunday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "America/New_York"},
	}
	from := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	slots := Generate(windows, nil, Options{
		RangeStart: from,
		RangeEnd:   from.Add(48 * time.Hour),
		Duration:   time.Hour,
		Now:        longAgo,
	})

	assert.Equal(t, []string{"2024-03-09T14:00:00Z", "2024-03-10T13:00:00Z"}, starts(slots))
}

func TestGenerate_BusyIntervalScoping(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	windows := []Window{
		{ResourceID: a, Weekday: time.Monday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "UTC"},
		{ResourceID: b, Weekday: time.Monday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "UTC"},
	}
	opts := Options{
		RangeStart: monday,
		RangeEnd:   monday.Add(24 * time.Hour),
		Duration:   time.Hour,
		Now:        longAgo,
	}
	nine := monday.Add(9 * time.Hour)

	t.Run("attributed blocks only its resource", func(t *testing.T) {
		busy := []BusyInterval{{ResourceID: a, Start: nine, End: nine.Add(time.Hour)}}
		slots := Generate(windows, busy, opts)
		require.Len(t, slots, 1)
		assert.Equal(t, b, slots[0].ResourceID)
	})

	t.Run("unattributed blocks every resource", func(t *testing.T) {
		busy := []BusyInterval{{Start: nine.Add(30 * time.Minute), End: nine.Add(45 * time.Minute)}}
		assert.Empty(t, Generate(windows, busy, opts))
	})

	t.Run("adjacent interval does not block", func(t *testing.T) {
		busy := []BusyInterval{{Start: nine.Add(time.Hour), End: nine.Add(2 * time.Hour)}}
		assert.Len(t, Generate(windows, busy, opts), 2)
	})
}

func TestGenerate_AdvanceBookingBounds(t *testing.T) {
	windows := []Window{{
		ResourceID: uuid.New(),
		Weekday:    time.Monday,
		StartLocal: "09:00",
		EndLocal:   "12:00",
		Timezone:   "UTC",
	}}
	base := Options{
		RangeStart: monday,
		RangeEnd:   monday.Add(24 * time.Hour),
		Duration:   time.Hour,
		Now:        monday.Add(8*time.Hour + 30*time.Minute),
	}

	withMin := base
	withMin.AdvanceMin = time.Hour
	assert.Equal(t, []string{"2024-03-04T10:00:00Z", "2024-03-04T11:00:00Z"}, starts(Generate(windows, nil, withMin)))

	withBoth := withMin
	withBoth.AdvanceMax = 2 * time.Hour
	assert.Equal(t, []string{"2024-03-04T10:00:00Z"}, starts(Generate(windows, nil, withBoth)))
}

func TestGenerate_RangeClipsSlots(t *testing.T) {
	windows := []Window{{
		ResourceID: uuid.New(),
		Weekday:    time.Monday,
		StartLocal: "09:00",
		EndLocal:   "12:00",
		Timezone:   "UTC",
	}}

	slots := Generate(windows, nil, Options{
		RangeStart: monday.Add(9*time.Hour + 30*time.Minute),
		RangeEnd:   monday.Add(11*time.Hour + 30*time.Minute),
		Duration:   time.Hour,
		Now:        longAgo,
	})

	assert.Equal(t, []string{"2024-03-04T10:00:00Z"}, starts(slots))
}

func TestGenerate_StepAlignmentInvariant(t *testing.T) {
	windows := []Window{{
		ResourceID: uuid.New(),
		Weekday:    time.Monday,
		StartLocal: "08:10",
		EndLocal:   "18:00",
		Timezone:   "Europe/Berlin",
	}}
	step := 45*time.Minute + 10*time.Minute

	slots := Generate(windows, nil, Options{
		RangeStart: monday,
		RangeEnd:   monday.Add(24 * time.Hour),
		Duration:   45 * time.Minute,
		Buffer:     10 * time.Minute,
		Now:        longAgo,
	})

	require.NotEmpty(t, slots)
	windowStart := time.Date(2024, 3, 4, 8, 10, 0, 0, mustLoad(t, "Europe/Berlin"))
	for _, s := range slots {
		assert.Zero(t, s.Start.Sub(windowStart)%step)
	}
}

func TestGenerate_InvalidInputsYieldNothing(t *testing.T) {
	windows := []Window{
		{ResourceID: uuid.New(), Weekday: time.Monday, StartLocal: "9am", EndLocal: "10:00", Timezone: "UTC"},
		{ResourceID: uuid.New(), Weekday: time.Monday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "Mars/Olympus"},
	}
	assert.Empty(t, Generate(windows, nil, Options{
		RangeStart: monday,
		RangeEnd:   monday.Add(24 * time.Hour),
		Duration:   time.Hour,
		Now:        longAgo,
	}))
	assert.Empty(t, Generate(nil, nil, Options{RangeStart: monday, RangeEnd: monday, Duration: time.Hour}))
}

func TestCollapse(t *testing.T) {
	nine := monday.Add(9 * time.Hour)
	slots := []Slot{
		{ResourceID: uuid.New(), Start: nine, End: nine.Add(time.Hour)},
		{ResourceID: uuid.New(), Start: nine, End: nine.Add(time.Hour)},
		{ResourceID: uuid.New(), Start: nine, End: nine.Add(30 * time.Minute)},
	}

	collapsed := Collapse(slots)

	require.Len(t, collapsed, 2)
	for _, s := range collapsed {
		assert.Equal(t, uuid.Nil, s.ResourceID)
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}
