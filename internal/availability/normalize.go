package availability

import "github.com/google/uuid"

// Normalize resolves the effective windows of every resource for an offering.
// Windows scoped to the offering replace the resource's default windows
// entirely when at least one exists; windows scoped to other offerings are
// ignored. Output keeps the resources in first-seen order.
func Normalize(windows []Window, offeringID uuid.UUID) []Window {
	type partition struct {
		defaults  []Window
		overrides []Window
	}

	var order []uuid.UUID
	byResource := make(map[uuid.UUID]*partition)

	for _, w := range windows {
		p, ok := byResource[w.ResourceID]
		if !ok {
			p = &partition{}
			byResource[w.ResourceID] = p
			order = append(order, w.ResourceID)
		}
		switch {
		case w.OfferingID == uuid.Nil:
			p.defaults = append(p.defaults, w)
		case w.OfferingID == offeringID:
			p.overrides = append(p.overrides, w)
		}
	}

	var out []Window
	for _, id := range order {
		p := byResource[id]
		if len(p.overrides) > 0 {
			out = append(out, p.overrides...)
			continue
		}
		out = append(out, p.defaults...)
	}
	return out
}
