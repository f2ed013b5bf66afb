// Package mirror keeps an external mirror calendar's tagged events equal to a
// target booking set.
package mirror

import (
	"context"
	"time"
)

// Event is an all-day event as listed from a mirror calendar.
type Event struct {
	ID      string
	Start   time.Time
	End     time.Time
	Summary string
}

// Calendar is the external mirror calendar service.
type Calendar interface {
	List(ctx context.Context, calendarID string) ([]Event, error)
	Insert(ctx context.Context, calendarID string, start, end time.Time, summary string) (string, error)
	Delete(ctx context.Context, calendarID, eventID string) error
}
