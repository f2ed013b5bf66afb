package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/syncwatch/backend/internal/storage/models"
	"github.com/syncwatch/backend/internal/websocket"
)

// DefaultRefresh is the pause between the end of one sweep and the start of the next.
const DefaultRefresh = 15 * time.Minute

// PropertySyncer runs one property cycle.
type PropertySyncer interface {
	SyncProperty(ctx context.Context, p models.Property) (*models.SyncResult, error)
}

// ParseSchedule accepts a Go duration ("15m"), a cron descriptor
// ("@every 15m", "@hourly") or a standard 5-field cron expression.
func ParseSchedule(refresh string) (cron.Schedule, error) {
	if refresh == "" {
		return cron.Every(DefaultRefresh), nil
	}
	if d, err := time.ParseDuration(refresh); err == nil {
		if d < time.Second {
			return nil, fmt.Errorf("refresh %q is shorter than one second", refresh)
		}
		return cron.Every(d), nil
	}
	sched, err := cron.ParseStandard(refresh)
	if err != nil {
		return nil, fmt.Errorf("parsing refresh schedule %q: %w", refresh, err)
	}
	return sched, nil
}

// Scheduler sweeps every property sequentially. The next sweep starts at
// the first schedule tick after the previous sweep finished, so sweep
// duration is never subtracted from the period.
type Scheduler struct {
	syncer      PropertySyncer
	properties  []models.Property
	schedule    cron.Schedule
	broadcaster *websocket.EventBroadcaster
	log         logrus.FieldLogger
	now         func() time.Time

	mu        sync.RWMutex
	lastSweep time.Time
	nextSweep time.Time
	results   map[string]models.SyncResult
}

// NewScheduler creates a scheduler. hub may be nil.
func NewScheduler(
	syncer PropertySyncer,
	properties []models.Property,
	schedule cron.Schedule,
	hub *websocket.Hub,
	log logrus.FieldLogger,
) *Scheduler {
	if schedule == nil {
		schedule = cron.Every(DefaultRefresh)
	}

	var broadcaster *websocket.EventBroadcaster
	if hub != nil {
		broadcaster = websocket.NewEventBroadcaster(hub, log)
	}

	return &Scheduler{
		syncer:      syncer,
		properties:  properties,
		schedule:    schedule,
		broadcaster: broadcaster,
		log:         log,
		now:         time.Now,
		results:     make(map[string]models.SyncResult, len(properties)),
	}
}

// Run sweeps immediately, then after every schedule tick, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithField("properties", len(s.properties)).Info("scheduler started")

	for {
		s.RunOnce(ctx)
		if ctx.Err() != nil {
			s.log.Info("scheduler stopped")
			return ctx.Err()
		}

		finished := s.now()
		next := s.schedule.Next(finished)
		s.mu.Lock()
		s.nextSweep = next
		s.mu.Unlock()
		s.log.WithField("next_sweep", next.Format(time.RFC3339)).Debug("sleeping until next sweep")

		timer := time.NewTimer(next.Sub(finished))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce syncs every property in order. A property's failure is logged and
// the sweep moves on. Results are returned in property order.
func (s *Scheduler) RunOnce(ctx context.Context) []models.SyncResult {
	started := s.now()
	results := make([]models.SyncResult, 0, len(s.properties))
	failedCount := 0

	for _, p := range s.properties {
		if ctx.Err() != nil {
			break
		}

		result, err := s.syncer.SyncProperty(ctx, p)
		if result == nil {
			result = &models.SyncResult{PropertyName: p.Name, Error: err, SyncedAt: s.now().UTC()}
		}
		if err != nil {
			result.Error = err
			failedCount++
			s.log.WithError(err).WithFields(logrus.Fields{
				"property": p.Name,
				"state":    result.State,
			}).Error("property sync failed, previous snapshot kept")
			if s.broadcaster != nil {
				s.broadcaster.BroadcastSyncFailed(p.Name, result.State, err)
			}
		} else if s.broadcaster != nil {
			s.broadcaster.BroadcastSyncCompleted(*result)
		}

		results = append(results, *result)
		s.mu.Lock()
		s.results[p.Name] = *result
		s.mu.Unlock()
	}

	finished := s.now()
	s.mu.Lock()
	s.lastSweep = finished
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"properties": len(results),
		"failed":     failedCount,
		"duration":   finished.Sub(started).Round(time.Millisecond),
	}).Info("sweep finished")

	return results
}

// Properties returns the configured properties.
func (s *Scheduler) Properties() []models.Property {
	return s.properties
}

// LastSweep returns when the last sweep finished, zero before the first.
func (s *Scheduler) LastSweep() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSweep
}

// NextSweep returns when the next sweep is due, zero while sweeping the first time.
func (s *Scheduler) NextSweep() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSweep
}

// LastResult returns the latest cycle result of a property.
func (s *Scheduler) LastResult(property string) (models.SyncResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[property]
	return r, ok
}
