package reconcile

import (
	"time"

	"github.com/syncwatch/backend/internal/storage/models"
)

// Diff is the outcome of comparing one cycle's fetch against the prior snapshot.
type Diff struct {
	NewFromA       []models.Booking
	NewFromB       []models.Booking
	CancelledFromA []string
	CancelledFromB []string
	Conflicts      []models.Conflict
}

// Compute diffs the current bookings of both sources against prior.
// Conflicts are found by checking every A booking against every B booking;
// feeds hold tens of bookings, so the quadratic scan is intended.
func Compute(a, b []models.Booking, prior *models.Snapshot) Diff {
	if prior == nil {
		prior = models.NewSnapshot("")
	}

	d := Diff{
		NewFromA:       newBookings(a, prior.UIDs(models.SourceA)),
		NewFromB:       newBookings(b, prior.UIDs(models.SourceB)),
		CancelledFromA: cancelled(a, prior.UIDs(models.SourceA)),
		CancelledFromB: cancelled(b, prior.UIDs(models.SourceB)),
	}

	for _, ab := range a {
		for _, bb := range b {
			if Overlaps(ab.Start, ab.End, bb.Start, bb.End) {
				d.Conflicts = append(d.Conflicts, models.Conflict{A: ab, B: bb})
			}
		}
	}

	return d
}

// NewFrom returns the new bookings of src.
func (d Diff) NewFrom(src models.Source) []models.Booking {
	if src == models.SourceA {
		return d.NewFromA
	}
	return d.NewFromB
}

// CancelledFrom returns the cancelled identities of src.
func (d Diff) CancelledFrom(src models.Source) []string {
	if src == models.SourceA {
		return d.CancelledFromA
	}
	return d.CancelledFromB
}

// SuppressCancellations drops the cancellations of src.
func (d *Diff) SuppressCancellations(src models.Source) {
	if src == models.SourceA {
		d.CancelledFromA = nil
		return
	}
	d.CancelledFromB = nil
}

// ConflictIDs returns the distinct identities of the current conflicts, in discovery order.
func (d Diff) ConflictIDs() []models.ConflictID {
	seen := make(map[models.ConflictID]bool, len(d.Conflicts))
	ids := make([]models.ConflictID, 0, len(d.Conflicts))
	for _, c := range d.Conflicts {
		id := c.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// IsEmpty reports whether the diff carries no signal at all.
func (d Diff) IsEmpty() bool {
	return len(d.NewFromA) == 0 && len(d.NewFromB) == 0 &&
		len(d.CancelledFromA) == 0 && len(d.CancelledFromB) == 0 &&
		len(d.Conflicts) == 0
}

func newBookings(current []models.Booking, prior map[string]bool) []models.Booking {
	var out []models.Booking
	seen := make(map[string]bool, len(current))
	for _, b := range current {
		id := b.Identity()
		if prior[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, b)
	}
	return out
}

func cancelled(current []models.Booking, prior map[string]bool) []string {
	present := identities(current)
	gone := make(map[string]bool)
	for id := range prior {
		if !present[id] {
			gone[id] = true
		}
	}
	if len(gone) == 0 {
		return nil
	}
	return models.SortedKeys(gone)
}

func identities(bookings []models.Booking) map[string]bool {
	set := make(map[string]bool, len(bookings))
	for _, b := range bookings {
		set[b.Identity()] = true
	}
	return set
}

// NextSnapshot builds the snapshot to persist after a successful cycle.
// Sources listed in carry keep the identity set of prior instead of the
// (empty) current one; failing lists the sources whose fetch failed.
func NextSnapshot(prior *models.Snapshot, a, b []models.Booking, d Diff, failing, carry []models.Source, now time.Time) *models.Snapshot {
	next := &models.Snapshot{
		PropertyName:   prior.PropertyName,
		SourceAUIDs:    models.SortedKeys(identities(a)),
		SourceBUIDs:    models.SortedKeys(identities(b)),
		KnownConflicts: d.ConflictIDs(),
		FailingSources: append([]models.Source(nil), failing...),
		LastChecked:    now,
	}
	for _, src := range carry {
		if src == models.SourceA {
			next.SourceAUIDs = append([]string(nil), prior.SourceAUIDs...)
		} else {
			next.SourceBUIDs = append([]string(nil), prior.SourceBUIDs...)
		}
	}
	if len(carry) > 0 {
		// A carried source cannot pair up this cycle; keep what was already alerted.
		known := next.KnownConflictSet()
		for _, id := range prior.KnownConflicts {
			if !known[id] {
				known[id] = true
				next.KnownConflicts = append(next.KnownConflicts, id)
			}
		}
	}
	next.Normalize()
	return next
}
