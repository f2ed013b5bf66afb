package calendar

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/syncwatch/backend/internal/mirror"
	"github.com/syncwatch/backend/internal/reconcile"
	"github.com/syncwatch/backend/internal/storage"
	"github.com/syncwatch/backend/internal/storage/models"
)

// AlertDispatcher delivers one alert to every notification channel.
// Channel failures are handled inside; an error only reports that the
// alert could not be recorded.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert models.Alert) error
}

var sources = []models.Source{models.SourceA, models.SourceB}

// SyncOptions configures a SyncService.
type SyncOptions struct {
	Policy reconcile.Policy
	// SuppressOutageCancellations carries a failed source's prior identities
	// forward instead of treating its bookings as cancelled.
	SuppressOutageCancellations bool
}

// SyncService runs the sync cycle of one property at a time.
type SyncService struct {
	feeds      FeedSource
	store      storage.SnapshotStore
	artifacts  *ArtifactWriter
	reconciler *mirror.Reconciler
	alerts     AlertDispatcher
	opts       SyncOptions
	log        logrus.FieldLogger
	now        func() time.Time
}

// NewSyncService creates a sync service. artifacts and reconciler may be nil
// to disable file publishing or mirroring.
func NewSyncService(
	feeds FeedSource,
	store storage.SnapshotStore,
	artifacts *ArtifactWriter,
	reconciler *mirror.Reconciler,
	alerts AlertDispatcher,
	opts SyncOptions,
	log logrus.FieldLogger,
) *SyncService {
	return &SyncService{
		feeds:      feeds,
		store:      store,
		artifacts:  artifacts,
		reconciler: reconciler,
		alerts:     alerts,
		opts:       opts,
		log:        log,
		now:        time.Now,
	}
}

// SyncProperty runs one cycle for p: fetch both feeds, diff against the
// stored snapshot, reconcile mirrors and artifacts, dispatch alerts and
// persist the next snapshot. The snapshot is only written when every step
// before it completed; any error or panic leaves the previous one in place.
func (s *SyncService) SyncProperty(ctx context.Context, p models.Property) (result *models.SyncResult, err error) {
	started := s.now()
	result = &models.SyncResult{
		PropertyName: p.Name,
		State:        models.StateFetching,
		SyncedAt:     started.UTC(),
	}
	log := s.log.WithField("property", p.Name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while %s: %v", result.State, r)
			log.WithField("stack", string(debug.Stack())).WithError(err).Error("sync cycle panicked")
		}
		if err != nil {
			result.Error = err
		}
		result.Duration = s.now().Sub(started)
	}()

	prior, err := s.store.Get(ctx, p.Name)
	if err != nil {
		return result, fmt.Errorf("reading snapshot: %w", err)
	}

	// Fetching
	current := make(map[models.Source][]models.Booking, 2)
	var failures []reconcile.FetchFailure
	failed := make(map[models.Source]bool, 2)
	for _, src := range sources {
		bookings, ferr := s.feeds.FetchBookings(ctx, p.Feed(src))
		if ferr != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			failures = append(failures, reconcile.FetchFailure{Source: src, Err: ferr})
			failed[src] = true
			result.FetchFailed = append(result.FetchFailed, src)
			log.WithError(ferr).WithField("source", s.opts.Policy.Labels.For(src)).
				Warn("feed fetch failed, treating source as empty this cycle")
			continue
		}
		if prior.IsFailing(src) {
			log.WithField("source", s.opts.Policy.Labels.For(src)).Info("feed recovered")
		}
		current[src] = bookings
	}
	a, b := current[models.SourceA], current[models.SourceB]
	result.BookingsA, result.BookingsB = len(a), len(b)

	// Diffing
	result.State = models.StateDiffing
	diff := reconcile.Compute(a, b, prior)
	var carry []models.Source
	if s.opts.SuppressOutageCancellations {
		for _, f := range failures {
			diff.SuppressCancellations(f.Source)
			carry = append(carry, f.Source)
		}
	}
	result.NewBookings = len(diff.NewFromA) + len(diff.NewFromB)
	result.Cancellations = len(diff.CancelledFromA) + len(diff.CancelledFromB)
	result.Conflicts = len(diff.Conflicts)

	// Reconciling
	result.State = models.StateReconciling
	for _, src := range sources {
		if failed[src] {
			log.WithField("source", s.opts.Policy.Labels.For(src)).
				Warn("skipping mirror and artifact for failed source, they stay stale this cycle")
			continue
		}
		s.publish(ctx, log, p, src, current[src], result)
	}

	// Alerting
	result.State = models.StateAlerting
	alerts := s.opts.Policy.Decide(p.Name, diff, prior, failures)
	for _, alert := range alerts {
		if alert.Kind == models.AlertDoubleBooking {
			result.NewConflicts++
		}
		if derr := s.alerts.Dispatch(ctx, alert); derr != nil {
			log.WithError(derr).WithField("kind", alert.Kind).Warn("alert dispatch incomplete")
		}
		result.AlertsSent++
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Persisting
	result.State = models.StatePersisting
	failing := make([]models.Source, 0, len(failures))
	for _, f := range failures {
		failing = append(failing, f.Source)
	}
	next := reconcile.NextSnapshot(prior, a, b, diff, failing, carry, s.now().UTC())
	next.PropertyName = p.Name
	if err := s.store.Put(ctx, next); err != nil {
		return result, fmt.Errorf("persisting snapshot: %w", err)
	}

	result.State = models.StateIdle
	entry := log.WithFields(logrus.Fields{
		"bookings_a":      result.BookingsA,
		"bookings_b":      result.BookingsB,
		"fetch_failed":    len(result.FetchFailed),
		"new_bookings":    result.NewBookings,
		"cancellations":   result.Cancellations,
		"conflicts":       result.Conflicts,
		"mirror_inserted": result.MirrorInserted,
		"mirror_deleted":  result.MirrorDeleted,
		"alerts":          result.AlertsSent,
	})
	if diff.IsEmpty() && len(failures) == 0 {
		entry.Debug("property synced")
	} else {
		entry.Info("property synced")
	}

	return result, nil
}

// publish writes the artifact and mirror that carry src's bookings.
// Failures are logged and counted; they never abort the cycle.
func (s *SyncService) publish(ctx context.Context, log logrus.FieldLogger, p models.Property, src models.Source, bookings []models.Booking, result *models.SyncResult) {
	if s.artifacts != nil {
		if _, err := s.artifacts.Write(p.Name, src, bookings); err != nil {
			log.WithError(err).Warn("artifact not written, previous file stays published")
		}
	}

	calendarID := p.MirrorFor(src)
	if s.reconciler == nil || calendarID == "" {
		return
	}

	res, err := s.reconciler.Reconcile(ctx, calendarID, bookings)
	result.MirrorInserted += res.Inserted
	result.MirrorDeleted += res.Deleted
	if err != nil {
		result.MirrorErrors++
		log.WithError(err).WithField("calendar", calendarID).
			Warn("mirror reconciliation abandoned, mirror stays stale until next cycle")
	}
}
