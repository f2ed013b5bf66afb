package reconcile

import (
	"fmt"
	"strings"

	"github.com/syncwatch/backend/internal/storage/models"
)

// Labels names the two sources in human-facing messages.
type Labels struct {
	A string
	B string
}

// For returns the label of src.
func (l Labels) For(src models.Source) string {
	if src == models.SourceA {
		return l.A
	}
	return l.B
}

// Policy decides which alerts a cycle raises.
type Policy struct {
	Labels Labels
	// FeedBroken enables the alert raised when a source starts failing.
	FeedBroken bool
}

// FetchFailure describes a source whose fetch failed this cycle.
type FetchFailure struct {
	Source models.Source
	Err    error
}

// Decide returns one alert per signal in d, skipping conflicts already in
// prior.KnownConflicts and feed failures that were already failing in prior.
func (p Policy) Decide(property string, d Diff, prior *models.Snapshot, failures []FetchFailure) []models.Alert {
	var alerts []models.Alert

	if p.FeedBroken {
		for _, f := range failures {
			if prior.IsFailing(f.Source) {
				continue
			}
			alerts = append(alerts, p.feedBroken(property, f))
		}
	}

	for _, src := range []models.Source{models.SourceA, models.SourceB} {
		for _, b := range d.NewFrom(src) {
			alerts = append(alerts, p.newBooking(property, src, b))
		}
	}

	for _, src := range []models.Source{models.SourceA, models.SourceB} {
		for _, id := range d.CancelledFrom(src) {
			alerts = append(alerts, p.cancellation(property, src, id))
		}
	}

	known := prior.KnownConflictSet()
	for _, c := range d.Conflicts {
		id := c.ID()
		if known[id] {
			continue
		}
		// Mark as known so a duplicated pair within one cycle alerts once.
		known[id] = true
		alerts = append(alerts, p.doubleBooking(property, c))
	}

	return alerts
}

func (p Policy) newBooking(property string, src models.Source, b models.Booking) models.Alert {
	return models.Alert{
		Kind:         models.AlertNewBooking,
		PropertyName: property,
		Source:       src,
		Subject:      fmt.Sprintf("New %s booking: %s", p.Labels.For(src), property),
		Body: fmt.Sprintf("Apartment: %s\nDates: %s → %s\nGuest: %s",
			property, b.Start.Format(models.DateLayout), b.End.Format(models.DateLayout), b.Summary),
	}
}

func (p Policy) cancellation(property string, src models.Source, id string) models.Alert {
	return models.Alert{
		Kind:         models.AlertCancellation,
		PropertyName: property,
		Source:       src,
		Subject:      fmt.Sprintf("Cancelled %s booking: %s", p.Labels.For(src), property),
		Body: fmt.Sprintf("Apartment: %s\nA %s booking is no longer in the feed.\nBooking ID: %s",
			property, p.Labels.For(src), id),
	}
}

func (p Policy) doubleBooking(property string, c models.Conflict) models.Alert {
	width := len(p.Labels.A)
	if len(p.Labels.B) > width {
		width = len(p.Labels.B)
	}
	pad := func(label string) string {
		return label + ":" + strings.Repeat(" ", width-len(label)+1)
	}

	return models.Alert{
		Kind:         models.AlertDoubleBooking,
		PropertyName: property,
		Subject:      fmt.Sprintf("⚠️ DOUBLE BOOKING: %s", property),
		Body: fmt.Sprintf("Apartment: %s\n\n%s%s → %s\n%s%s → %s\n\nACTION NEEDED: Cancel one booking immediately.",
			property,
			pad(p.Labels.A), c.A.Start.Format(models.DateLayout), c.A.End.Format(models.DateLayout),
			pad(p.Labels.B), c.B.Start.Format(models.DateLayout), c.B.End.Format(models.DateLayout),
		),
	}
}

func (p Policy) feedBroken(property string, f FetchFailure) models.Alert {
	reason := "unknown error"
	if f.Err != nil {
		reason = f.Err.Error()
	}
	return models.Alert{
		Kind:         models.AlertFeedBroken,
		PropertyName: property,
		Source:       f.Source,
		Subject:      fmt.Sprintf("Feed broken: %s %s", property, p.Labels.For(f.Source)),
		Body: fmt.Sprintf("Apartment: %s\nThe %s calendar could not be fetched: %s\n\nData from this feed is stale until it recovers; cancellation alerts for it may be spurious.",
			property, p.Labels.For(f.Source), reason),
	}
}
