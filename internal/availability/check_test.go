package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	resource := uuid.New()
	day := []Window{{ResourceID: resource, Weekday: time.Monday, StartLocal: "09:00", EndLocal: "17:00", Timezone: "UTC"}}
	buffered := []Window{{ResourceID: resource, Weekday: time.Monday, StartLocal: "09:00", EndLocal: "12:00", Timezone: "UTC"}}
	overnight := []Window{{ResourceID: resource, Weekday: time.Friday, StartLocal: "22:00", EndLocal: "02:00", Timezone: "UTC"}}
	at := func(base time.Time, h, m int) time.Time {
		return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}

	tests := []struct {
		name     string
		windows  []Window
		busy     []BusyInterval
		start    time.Time
		end      time.Time
		duration time.Duration
		buffer   time.Duration
		want     bool
	}{
		{
			name:     "aligned slot inside window",
			windows:  day,
			start:    at(monday, 11, 0),
			end:      at(monday, 12, 0),
			duration: time.Hour,
			want:     true,
		},
		{
			name:     "duration mismatch rejected even inside window",
			windows:  day,
			start:    at(monday, 11, 0),
			end:      at(monday, 12, 30),
			duration: time.Hour,
			want:     false,
		},
		{
			name:     "misaligned start rejected",
			windows:  buffered,
			start:    at(monday, 10, 0),
			end:      at(monday, 11, 0),
			duration: time.Hour,
			buffer:   15 * time.Minute,
			want:     false,
		},
		{
			name:     "buffer aligned start accepted",
			windows:  buffered,
			start:    at(monday, 10, 15),
			end:      at(monday, 11, 15),
			duration: time.Hour,
			buffer:   15 * time.Minute,
			want:     true,
		},
		{
			name:     "slot running past window end rejected",
			windows:  buffered,
			start:    at(monday, 11, 30),
			end:      at(monday, 12, 30),
			duration: time.Hour,
			buffer:   15 * time.Minute,
			want:     false,
		},
		{
			name:     "post-midnight slot found through previous day's overnight window",
			windows:  overnight,
			start:    at(friday, 25, 0),
			end:      at(friday, 26, 0),
			duration: time.Hour,
			want:     true,
		},
		{
			name:     "after overnight window closes",
			windows:  overnight,
			start:    at(friday, 26, 0),
			end:      at(friday, 27, 0),
			duration: time.Hour,
			want:     false,
		},
		{
			name:     "wrong weekday",
			windows:  day,
			start:    at(monday, 24+11, 0),
			end:      at(monday, 24+12, 0),
			duration: time.Hour,
			want:     false,
		},
		{
			name:    "without duration only containment applies",
			windows: day,
			start:   at(monday, 9, 10),
			end:     at(monday, 9, 40),
			want:    true,
		},
		{
			name:    "end before start",
			windows: day,
			start:   at(monday, 10, 0),
			end:     at(monday, 9, 0),
			want:    false,
		},
		{
			name:     "overlapping busy interval",
			windows:  day,
			busy:     []BusyInterval{{ResourceID: resource, Start: at(monday, 11, 30), End: at(monday, 13, 0)}},
			start:    at(monday, 11, 0),
			end:      at(monday, 12, 0),
			duration: time.Hour,
			want:     false,
		},
		{
			name:     "busy interval for another resource",
			windows:  day,
			busy:     []BusyInterval{{ResourceID: uuid.New(), Start: at(monday, 11, 0), End: at(monday, 12, 0)}},
			start:    at(monday, 11, 0),
			end:      at(monday, 12, 0),
			duration: time.Hour,
			want:     true,
		},
		{
			name:     "unattributed busy interval",
			windows:  day,
			busy:     []BusyInterval{{Start: at(monday, 11, 0), End: at(monday, 12, 0)}},
			start:    at(monday, 11, 0),
			end:      at(monday, 12, 0),
			duration: time.Hour,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.windows, tt.busy, tt.start, tt.end, tt.duration, tt.buffer)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_PicksFreeResource(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	windows := []Window{
		{ResourceID: a, Weekday: time.Monday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "UTC"},
		{ResourceID: b, Weekday: time.Monday, StartLocal: "09:00", EndLocal: "10:00", Timezone: "UTC"},
	}
	start := monday.Add(9 * time.Hour)
	ix := NewIndex(windows)

	got, ok := ix.Resolve(nil, start, start.Add(time.Hour), time.Hour, 0)
	assert.True(t, ok)
	assert.Equal(t, a, got)

	busy := []BusyInterval{{ResourceID: a, Start: start, End: start.Add(time.Hour)}}
	got, ok = ix.Resolve(busy, start, start.Add(time.Hour), time.Hour, 0)
	assert.True(t, ok)
	assert.Equal(t, b, got)

	busy = append(busy, BusyInterval{ResourceID: b, Start: start, End: start.Add(time.Hour)})
	_, ok = ix.Resolve(busy, start, start.Add(time.Hour), time.Hour, 0)
	assert.False(t, ok)
}

func TestCheck_AgreesWithGenerate(t *testing.T) {
	windows := []Window{
		{ResourceID: uuid.New(), Weekday: time.Friday, StartLocal: "22:00", EndLocal: "02:30", Timezone: "America/Los_Angeles"},
		{ResourceID: uuid.New(), Weekday: time.Saturday, StartLocal: "08:00", EndLocal: "11:00", Timezone: "Asia/Kolkata"},
	}
	opts := Options{
		RangeStart: friday,
		RangeEnd:   friday.Add(72 * time.Hour),
		Duration:   40 * time.Minute,
		Buffer:     5 * time.Minute,
		Now:        longAgo,
	}

	slots := Generate(windows, nil, opts)
	assert.NotEmpty(t, slots)
	for _, s := range slots {
		assert.True(t, Check(windows, nil, s.Start, s.End, opts.Duration, opts.Buffer), s.Start.String())
	}
}
