package availability

import (
	"time"

	"github.com/google/uuid"
)

// Check reports whether at least one resource can take [start, end).
func Check(windows []Window, busy []BusyInterval, start, end time.Time, duration, buffer time.Duration) bool {
	_, ok := NewIndex(windows).Resolve(busy, start, end, duration, buffer)
	return ok
}

// Check is the single-slot form of Resolve.
func (ix *Index) Check(busy []BusyInterval, start, end time.Time, duration, buffer time.Duration) bool {
	_, ok := ix.Resolve(busy, start, end, duration, buffer)
	return ok
}

// Resolve returns the first resource, in index order, that has a window
// containing [start, end), whose window start is a whole number of
// (duration + buffer) steps before start, and that no applicable busy
// interval overlaps. A zero duration skips the exact-length and alignment
// rules.
func (ix *Index) Resolve(busy []BusyInterval, start, end time.Time, duration, buffer time.Duration) (uuid.UUID, bool) {
	if !start.Before(end) {
		return uuid.Nil, false
	}
	if duration > 0 && !end.Equal(start.Add(duration)) {
		return uuid.Nil, false
	}
	step := duration + max(buffer, 0)

	for _, resourceID := range ix.resources {
		if !ix.openFor(resourceID, start, end, duration, step) {
			continue
		}
		free := true
		for _, b := range busy {
			if b.appliesTo(resourceID) && b.overlaps(start, end) {
				free = false
				break
			}
		}
		if free {
			return resourceID, true
		}
	}
	return uuid.Nil, false
}

func (ix *Index) openFor(resourceID uuid.UUID, start, end time.Time, duration, step time.Duration) bool {
	for _, loc := range ix.locations[resourceID] {
		today := localNoon(start, loc, 0)
		yesterday := localNoon(start, loc, -1)

		if fitsAny(ix.windowsOn(resourceID, today.Weekday(), loc), today, start, end, duration, step) {
			return true
		}
		// A post-midnight instant may belong to the previous day's overnight window.
		var overnight []compiledWindow
		for _, w := range ix.windowsOn(resourceID, yesterday.Weekday(), loc) {
			if w.overnight() {
				overnight = append(overnight, w)
			}
		}
		if fitsAny(overnight, yesterday, start, end, duration, step) {
			return true
		}
	}
	return false
}

func fitsAny(windows []compiledWindow, day, start, end time.Time, duration, step time.Duration) bool {
	y, m, d := day.Date()
	for _, w := range windows {
		windowStart, windowEnd := w.bounds(y, m, d)
		if start.Before(windowStart) || end.After(windowEnd) {
			continue
		}
		if duration > 0 && start.Sub(windowStart)%step != 0 {
			continue
		}
		return true
	}
	return false
}
