package mirror

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/syncwatch/backend/internal/storage/models"
)

// maxListResults is the largest page the Calendar API serves.
const maxListResults = 2500

// GoogleCalendar is a Calendar backed by the Google Calendar API.
type GoogleCalendar struct {
	service *gcal.Service
}

// NewGoogleCalendar creates a Google Calendar client. When credentialsFile is
// set it is used as a service-account key; otherwise Application Default
// Credentials apply. Extra options are passed through to the API client.
func NewGoogleCalendar(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*GoogleCalendar, error) {
	if credentialsFile != "" {
		opts = append([]option.ClientOption{
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(gcal.CalendarEventsScope),
		}, opts...)
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}

	return &GoogleCalendar{service: svc}, nil
}

// List returns every non-cancelled event in the calendar.
func (g *GoogleCalendar) List(ctx context.Context, calendarID string) ([]Event, error) {
	var out []Event
	pageToken := ""

	for {
		call := g.service.Events.List(calendarID).
			SingleEvents(true).
			ShowDeleted(false).
			MaxResults(maxListResults).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing events of %s: %w", calendarID, err)
		}

		for _, item := range page.Items {
			ev, ok := fromAPIEvent(item)
			if !ok {
				continue
			}
			out = append(out, ev)
		}

		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// Insert creates an all-day event and returns its ID.
func (g *GoogleCalendar) Insert(ctx context.Context, calendarID string, start, end time.Time, summary string) (string, error) {
	created, err := g.service.Events.Insert(calendarID, &gcal.Event{
		Summary:      summary,
		Start:        &gcal.EventDateTime{Date: start.Format(models.DateLayout)},
		End:          &gcal.EventDateTime{Date: end.Format(models.DateLayout)},
		Transparency: "opaque",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("inserting event into %s: %w", calendarID, err)
	}
	return created.Id, nil
}

// Delete removes an event.
func (g *GoogleCalendar) Delete(ctx context.Context, calendarID, eventID string) error {
	if err := g.service.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("deleting event %s from %s: %w", eventID, calendarID, err)
	}
	return nil
}

// fromAPIEvent converts an API event into an all-day Event. Timed events are
// truncated to their dates.
func fromAPIEvent(item *gcal.Event) (Event, bool) {
	if item == nil || item.Start == nil || item.End == nil || item.Status == "cancelled" {
		return Event{}, false
	}

	start, ok := apiDate(item.Start)
	if !ok {
		return Event{}, false
	}
	end, ok := apiDate(item.End)
	if !ok {
		return Event{}, false
	}

	return Event{
		ID:      item.Id,
		Start:   start,
		End:     end,
		Summary: item.Summary,
	}, true
}

func apiDate(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt.Date != "" {
		t, err := time.Parse(models.DateLayout, dt.Date)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return models.Date(t), true
	}
	return time.Time{}, false
}
