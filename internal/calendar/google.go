package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const maxResultsPerPage = 250

func NewGoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gcal.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// GoogleSource reads a connected calendar's events through the Calendar API.
type GoogleSource struct {
	config *oauth2.Config
}

func NewGoogleSource(config *oauth2.Config) *GoogleSource {
	return &GoogleSource{config: config}
}

// Busy returns the confirmed, opaque events overlapping [from, to) and the
// token in use afterwards, which may have been refreshed.
func (s *GoogleSource) Busy(ctx context.Context, conn Connection, from, to time.Time) ([]BusyEvent, *oauth2.Token, error) {
	ts := s.config.TokenSource(ctx, conn.Token)
	srv, err := gcal.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, nil, fmt.Errorf("create calendar service: %w", err)
	}

	calendarID := conn.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	var busy []BusyEvent
	err = srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResultsPerPage).
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		Pages(ctx, func(page *gcal.Events) error {
			busy = append(busy, eventsToBusy(conn.ResourceID, page.Items)...)
			return nil
		})
	if err != nil {
		return nil, nil, fmt.Errorf("list events for %s: %w", conn.ResourceID, err)
	}

	token, err := ts.Token()
	if err != nil {
		return busy, conn.Token, nil
	}
	return busy, token, nil
}

// eventsToBusy keeps events that actually block time: not cancelled, not
// marked free, with a parsable range.
func eventsToBusy(resourceID uuid.UUID, items []*gcal.Event) []BusyEvent {
	out := make([]BusyEvent, 0, len(items))
	for _, item := range items {
		if item == nil || item.Status == "cancelled" || item.Transparency == "transparent" {
			continue
		}
		start, ok := eventTime(item.Start)
		if !ok {
			continue
		}
		end, ok := eventTime(item.End)
		if !ok || !end.After(start) {
			continue
		}
		out = append(out, BusyEvent{
			ResourceID: resourceID,
			ExternalID: item.Id,
			Start:      start.UTC(),
			End:        end.UTC(),
		})
	}
	return out
}

func eventTime(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, err == nil
	}
	if dt.Date != "" {
		// all-day events are dated in the event's zone
		loc := time.UTC
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		return t, err == nil
	}
	return time.Time{}, false
}
