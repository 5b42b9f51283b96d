package availability

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Generate expands windows into bookable slots. The result is advisory only.
func Generate(windows []Window, busy []BusyInterval, opts Options) []Slot {
	return NewIndex(windows).Slots(busy, opts)
}

// Slots walks every resource's windows across the local calendar dates that
// cover opts.RangeStart..opts.RangeEnd and returns the free slots sorted by
// start instant.
func (ix *Index) Slots(busy []BusyInterval, opts Options) []Slot {
	if opts.Duration <= 0 || !opts.RangeStart.Before(opts.RangeEnd) {
		return nil
	}
	step := opts.Duration + max(opts.Buffer, 0)
	now := opts.now()

	var out []Slot
	for _, resourceID := range ix.resources {
		blocking := busyFor(busy, resourceID)
		seen := make(map[[2]int64]struct{})

		for _, loc := range ix.locations[resourceID] {
			// Start one local day early so an overnight window opened the
			// day before the range can still contribute its tail.
			last := localNoon(opts.RangeEnd, loc, 0)
			for day := localNoon(opts.RangeStart, loc, -1); !day.After(last); day = localNoon(day, loc, 1) {
				y, m, d := day.Date()
				for _, w := range ix.windowsOn(resourceID, day.Weekday(), loc) {
					windowStart, windowEnd := w.bounds(y, m, d)
					for cursor := windowStart; !cursor.Add(opts.Duration).After(windowEnd); cursor = cursor.Add(step) {
						slot := Slot{ResourceID: resourceID, Start: cursor, End: cursor.Add(opts.Duration)}
						if !keep(slot, blocking, opts, now) {
							continue
						}
						key := [2]int64{slot.Start.UnixNano(), slot.End.UnixNano()}
						if _, dup := seen[key]; dup {
							continue
						}
						seen[key] = struct{}{}
						slot.Start = slot.Start.UTC()
						slot.End = slot.End.UTC()
						out = append(out, slot)
					}
				}
			}
		}
	}

	slices.SortStableFunc(out, func(a, b Slot) int {
		return a.Start.Compare(b.Start)
	})
	return out
}

func keep(s Slot, blocking []BusyInterval, opts Options, now time.Time) bool {
	if s.Start.Before(opts.RangeStart) || s.End.After(opts.RangeEnd) {
		return false
	}
	if !WithinAdvance(s.Start, now, opts.AdvanceMin, opts.AdvanceMax) {
		return false
	}
	for _, b := range blocking {
		if b.overlaps(s.Start, s.End) {
			return false
		}
	}
	return true
}

func busyFor(busy []BusyInterval, resourceID uuid.UUID) []BusyInterval {
	var out []BusyInterval
	for _, b := range busy {
		if b.appliesTo(resourceID) {
			out = append(out, b)
		}
	}
	return out
}

// Collapse merges slots that share an identical (start, end) across
// resources into one entry with no resource attribution. Input must be
// sorted by start.
func Collapse(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	seen := make(map[[2]int64]struct{}, len(slots))
	for _, s := range slots {
		key := [2]int64{s.Start.UnixNano(), s.End.UnixNano()}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Slot{Start: s.Start, End: s.End})
	}
	return out
}
