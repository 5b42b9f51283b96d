package availability

import (
	"time"

	"github.com/google/uuid"
)

type compiledWindow struct {
	resourceID uuid.UUID
	weekday    time.Weekday
	startMin   int
	endMin     int
	loc        *time.Location
}

func (c compiledWindow) overnight() bool {
	return c.endMin <= c.startMin
}

// bounds returns the instants of the window when it opens on the given local date.
func (c compiledWindow) bounds(y int, m time.Month, d int) (time.Time, time.Time) {
	start := time.Date(y, m, d, c.startMin/60, c.startMin%60, 0, 0, c.loc)
	endDay := d
	if c.overnight() {
		endDay++
	}
	end := time.Date(y, m, endDay, c.endMin/60, c.endMin%60, 0, 0, c.loc)
	return start, end
}

type indexKey struct {
	resource uuid.UUID
	weekday  time.Weekday
}

// Index is a request-scoped, read-only arena of windows keyed by
// (resource, weekday). Windows with an unparsable clock or an unknown
// timezone are left out.
type Index struct {
	arena     []compiledWindow
	byKey     map[indexKey][]int
	resources []uuid.UUID
	locations map[uuid.UUID][]*time.Location
}

func NewIndex(windows []Window) *Index {
	ix := &Index{
		byKey:     make(map[indexKey][]int),
		locations: make(map[uuid.UUID][]*time.Location),
	}
	zones := make(map[string]*time.Location)

	for _, w := range windows {
		startMin, err := ParseClock(w.StartLocal)
		if err != nil {
			continue
		}
		endMin, err := ParseClock(w.EndLocal)
		if err != nil {
			continue
		}
		loc, ok := zones[w.Timezone]
		if !ok {
			loc, err = time.LoadLocation(w.Timezone)
			if err != nil {
				continue
			}
			zones[w.Timezone] = loc
		}
		if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
			continue
		}

		if _, seen := ix.locations[w.ResourceID]; !seen {
			ix.resources = append(ix.resources, w.ResourceID)
		}
		ix.addLocation(w.ResourceID, loc)

		key := indexKey{resource: w.ResourceID, weekday: w.Weekday}
		ix.byKey[key] = append(ix.byKey[key], len(ix.arena))
		ix.arena = append(ix.arena, compiledWindow{
			resourceID: w.ResourceID,
			weekday:    w.Weekday,
			startMin:   startMin,
			endMin:     endMin,
			loc:        loc,
		})
	}
	return ix
}

func (ix *Index) addLocation(resourceID uuid.UUID, loc *time.Location) {
	for _, l := range ix.locations[resourceID] {
		if l == loc {
			return
		}
	}
	ix.locations[resourceID] = append(ix.locations[resourceID], loc)
}

// Resources returns the resources that have at least one usable window.
func (ix *Index) Resources() []uuid.UUID {
	return ix.resources
}

// windowsOn returns the windows of a resource in loc that open on the given weekday.
func (ix *Index) windowsOn(resourceID uuid.UUID, weekday time.Weekday, loc *time.Location) []compiledWindow {
	var out []compiledWindow
	for _, i := range ix.byKey[indexKey{resource: resourceID, weekday: weekday}] {
		if ix.arena[i].loc == loc {
			out = append(out, ix.arena[i])
		}
	}
	return out
}

// localNoon returns noon of the local calendar date offset by days from t's date in loc.
// Weekdays are read at noon so DST shifts near midnight cannot move the date.
func localNoon(t time.Time, loc *time.Location, days int) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+days, 12, 0, 0, 0, loc)
}
