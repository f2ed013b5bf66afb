// Package models contains the domain models for the application.
package models

import (
	"time"
)

// DateLayout is the layout used for booking dates in logs, messages and fallback identities.
const DateLayout = "2006-01-02"

// Source identifies one of the two feeds configured for a property.
type Source string

const (
	SourceA Source = "a"
	SourceB Source = "b"
)

// Other returns the opposite source.
func (s Source) Other() Source {
	if s == SourceA {
		return SourceB
	}
	return SourceA
}

// Booking is one calendar event normalized from a feed.
// Start and End are calendar dates at UTC midnight; End is exclusive.
// Series is set on occurrences expanded from a recurring event and holds the
// identity of that event.
type Booking struct {
	UID     string    `json:"uid"`
	Series  string    `json:"series,omitempty"`
	Summary string    `json:"summary"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Identity returns the key used to recognize the booking across cycles.
// Occurrences of one recurring event share the identity of their series, so
// the expansion window moving forward never looks like a booking change.
// Bookings without a UID fall back to their start date, so two uid-less
// bookings starting the same day share an identity.
func (b Booking) Identity() string {
	if b.Series != "" {
		return b.Series
	}
	return b.EventUID()
}

// EventUID returns the per-event identifier used in published calendars.
// Unlike Identity it is distinct for every occurrence of a series.
func (b Booking) EventUID() string {
	if b.UID != "" {
		return b.UID
	}
	return "sw-" + b.Start.Format(DateLayout)
}

// Date truncates t to its calendar date, keeping the wall-clock day of t's location.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ConflictID identifies one overlapping pair: a source-A booking and a source-B booking.
type ConflictID struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Conflict is a pair of bookings, one from each source, whose date ranges overlap.
type Conflict struct {
	A Booking
	B Booking
}

// ID returns the identity of the conflict.
func (c Conflict) ID() ConflictID {
	return ConflictID{A: c.A.Identity(), B: c.B.Identity()}
}
