package mirror

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/syncwatch/backend/internal/storage/models"
)

// Strategy selects how the reconciler converges a mirror calendar.
type Strategy string

const (
	// StrategyIncremental inserts missing events and deletes stale ones.
	StrategyIncremental Strategy = "incremental"
	// StrategyReplace deletes every tagged event, then inserts the whole target set.
	StrategyReplace Strategy = "replace"
)

// DefaultTag is appended to the summary of every event written by SyncWatch.
const DefaultTag = "[SyncWatch]"

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyIncremental, StrategyReplace:
		return Strategy(s), nil
	case "":
		return StrategyIncremental, nil
	}
	return "", fmt.Errorf("unknown mirror strategy %q", s)
}

// Result counts the calls a reconciliation made.
type Result struct {
	Inserted int
	Deleted  int
	Foreign  int
}

// Reconciler makes a mirror calendar's tagged events match a booking set.
type Reconciler struct {
	calendar Calendar
	strategy Strategy
	tag      string
	log      logrus.FieldLogger
}

// NewReconciler creates a reconciler writing through cal.
func NewReconciler(cal Calendar, strategy Strategy, tag string, log logrus.FieldLogger) *Reconciler {
	if tag == "" {
		tag = DefaultTag
	}
	if strategy == "" {
		strategy = StrategyIncremental
	}
	return &Reconciler{
		calendar: cal,
		strategy: strategy,
		tag:      tag,
		log:      log,
	}
}

// Tagged returns summary with the ownership tag appended.
func (r *Reconciler) Tagged(summary string) string {
	return summary + " " + r.tag
}

// owns reports whether an event was written by us.
func (r *Reconciler) owns(ev Event) bool {
	return strings.HasSuffix(ev.Summary, r.tag)
}

// eventKey is the identity of a mirror event: its dates and tagged summary.
type eventKey struct {
	start   string
	end     string
	summary string
}

func keyOf(ev Event) eventKey {
	return eventKey{
		start:   ev.Start.Format(models.DateLayout),
		end:     ev.End.Format(models.DateLayout),
		summary: ev.Summary,
	}
}

// Reconcile converges calendarID to target. The first failing call aborts
// the reconciliation and is returned with the counts done so far.
func (r *Reconciler) Reconcile(ctx context.Context, calendarID string, target []models.Booking) (Result, error) {
	var res Result

	listed, err := r.calendar.List(ctx, calendarID)
	if err != nil {
		return res, fmt.Errorf("listing mirror events: %w", err)
	}

	existing := make([]Event, 0, len(listed))
	for _, ev := range listed {
		if r.owns(ev) {
			existing = append(existing, ev)
		} else {
			res.Foreign++
		}
	}

	wanted := make([]Event, 0, len(target))
	for _, b := range target {
		wanted = append(wanted, Event{Start: b.Start, End: b.End, Summary: r.Tagged(b.Summary)})
	}

	var toDelete, toInsert []Event
	switch r.strategy {
	case StrategyReplace:
		toDelete = existing
		toInsert = dedupe(wanted)
	default:
		toDelete, toInsert = plan(existing, wanted)
	}

	for _, ev := range toDelete {
		if err := r.calendar.Delete(ctx, calendarID, ev.ID); err != nil {
			return res, fmt.Errorf("deleting mirror event %s: %w", ev.ID, err)
		}
		res.Deleted++
	}

	for _, ev := range toInsert {
		if _, err := r.calendar.Insert(ctx, calendarID, ev.Start, ev.End, ev.Summary); err != nil {
			return res, fmt.Errorf("inserting mirror event %s: %w", ev.Start.Format(models.DateLayout), err)
		}
		res.Inserted++
	}

	r.log.WithFields(logrus.Fields{
		"calendar": calendarID,
		"strategy": r.strategy,
		"inserted": res.Inserted,
		"deleted":  res.Deleted,
		"foreign":  res.Foreign,
	}).Debug("mirror reconciled")

	return res, nil
}

// plan computes the incremental change set. Events sharing a key are one
// logical event: one of them is kept and the extras are deleted.
func plan(existing, wanted []Event) (toDelete, toInsert []Event) {
	want := make(map[eventKey]bool, len(wanted))
	for _, ev := range wanted {
		want[keyOf(ev)] = true
	}

	have := make(map[eventKey]bool, len(existing))
	for _, ev := range existing {
		k := keyOf(ev)
		if !want[k] || have[k] {
			toDelete = append(toDelete, ev)
			continue
		}
		have[k] = true
	}

	for _, ev := range dedupe(wanted) {
		if !have[keyOf(ev)] {
			toInsert = append(toInsert, ev)
		}
	}

	return toDelete, toInsert
}

func dedupe(events []Event) []Event {
	seen := make(map[eventKey]bool, len(events))
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		k := keyOf(ev)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ev)
	}
	return out
}
