package models

import "time"

// SyncState is the stage a property cycle is in.
type SyncState string

const (
	StateFetching    SyncState = "fetching"
	StateDiffing     SyncState = "diffing"
	StateReconciling SyncState = "reconciling"
	StateAlerting    SyncState = "alerting"
	StatePersisting  SyncState = "persisting"
	StateIdle        SyncState = "idle"
)

// SyncResult contains the results of one property cycle.
type SyncResult struct {
	PropertyName   string        `json:"property_name"`
	State          SyncState     `json:"state"`
	BookingsA      int           `json:"bookings_a"`
	BookingsB      int           `json:"bookings_b"`
	FetchFailed    []Source      `json:"fetch_failed,omitempty"`
	NewBookings    int           `json:"new_bookings"`
	Cancellations  int           `json:"cancellations"`
	Conflicts      int           `json:"conflicts"`
	NewConflicts   int           `json:"new_conflicts"`
	MirrorInserted int           `json:"mirror_inserted"`
	MirrorDeleted  int           `json:"mirror_deleted"`
	MirrorErrors   int           `json:"mirror_errors"`
	AlertsSent     int           `json:"alerts_sent"`
	Error          error         `json:"-"`
	SyncedAt       time.Time     `json:"synced_at"`
	Duration       time.Duration `json:"duration"`
}
