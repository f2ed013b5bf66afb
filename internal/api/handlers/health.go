// Package handlers provides HTTP request handlers for the status server.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/syncwatch/backend/internal/api/middleware"
	"github.com/syncwatch/backend/internal/storage"
	"github.com/syncwatch/backend/internal/storage/models"
)

// SweepStatus is the read-only view of the scheduler used by the handlers.
type SweepStatus interface {
	Properties() []models.Property
	LastSweep() time.Time
	NextSweep() time.Time
	LastResult(property string) (models.SyncResult, bool)
}

// RecentAlertsLimit is the number of alert log entries returned by Status.
const RecentAlertsLimit = 20

// HealthCheck returns a handler that reports the service as running.
func HealthCheck(sweeps SweepStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "SyncWatch running — %d properties active\n", len(sweeps.Properties()))
	}
}

// PropertyStatus summarizes one property's snapshot and latest cycle.
type PropertyStatus struct {
	Name           string              `json:"name"`
	BookingsA      int                 `json:"bookings_a"`
	BookingsB      int                 `json:"bookings_b"`
	KnownConflicts []models.ConflictID `json:"known_conflicts"`
	FailingSources []models.Source     `json:"failing_sources"`
	LastChecked    *time.Time          `json:"last_checked,omitempty"`
	LastResult     *models.SyncResult  `json:"last_result,omitempty"`
	LastError      string              `json:"last_error,omitempty"`
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Properties   []PropertyStatus     `json:"properties"`
	LastSweepAt  *time.Time           `json:"last_sweep_at,omitempty"`
	NextSweepAt  *time.Time           `json:"next_sweep_at,omitempty"`
	RecentAlerts []models.AlertRecord `json:"recent_alerts"`
}

// Status returns a handler that provides per-property snapshot summaries,
// sweep timing and the most recent alerts.
func Status(store storage.SnapshotStore, alerts storage.AlertLog, sweeps SweepStatus, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		snapshots, err := store.List(ctx)
		if err != nil {
			log.WithError(err).Error("listing snapshots for status")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read snapshots")
			return
		}
		byName := make(map[string]models.Snapshot, len(snapshots))
		for _, s := range snapshots {
			byName[s.PropertyName] = s
		}

		response := StatusResponse{
			Properties:   []PropertyStatus{},
			LastSweepAt:  optionalTime(sweeps.LastSweep()),
			NextSweepAt:  optionalTime(sweeps.NextSweep()),
			RecentAlerts: []models.AlertRecord{},
		}

		// Configured properties only; stale snapshots of removed properties are not reported.
		for _, p := range sweeps.Properties() {
			ps := PropertyStatus{
				Name:           p.Name,
				KnownConflicts: []models.ConflictID{},
				FailingSources: []models.Source{},
			}
			if snap, ok := byName[p.Name]; ok {
				ps.BookingsA = len(snap.SourceAUIDs)
				ps.BookingsB = len(snap.SourceBUIDs)
				if len(snap.KnownConflicts) > 0 {
					ps.KnownConflicts = snap.KnownConflicts
				}
				if len(snap.FailingSources) > 0 {
					ps.FailingSources = snap.FailingSources
				}
				ps.LastChecked = optionalTime(snap.LastChecked)
			}
			if res, ok := sweeps.LastResult(p.Name); ok {
				ps.LastResult = &res
				if res.Error != nil {
					ps.LastError = res.Error.Error()
				}
			}
			response.Properties = append(response.Properties, ps)
		}

		if alerts != nil {
			recent, err := alerts.Recent(ctx, RecentAlertsLimit)
			if err != nil {
				log.WithError(err).Warn("reading alert log for status")
			} else if len(recent) > 0 {
				response.RecentAlerts = recent
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
