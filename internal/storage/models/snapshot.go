package models

import (
	"sort"
	"time"
)

// Snapshot is the persisted record of what a property's sync engine observed
// and already alerted on as of its last successful cycle.
type Snapshot struct {
	PropertyName   string       `json:"property_name"`
	SourceAUIDs    []string     `json:"source_a_uids"`
	SourceBUIDs    []string     `json:"source_b_uids"`
	KnownConflicts []ConflictID `json:"known_conflicts"`
	FailingSources []Source     `json:"failing_sources,omitempty"`
	LastChecked    time.Time    `json:"last_checked"`
}

// NewSnapshot returns the empty snapshot used for a property seen for the first time.
func NewSnapshot(propertyName string) *Snapshot {
	return &Snapshot{
		PropertyName:   propertyName,
		SourceAUIDs:    []string{},
		SourceBUIDs:    []string{},
		KnownConflicts: []ConflictID{},
	}
}

// IsFirstRun reports whether the snapshot has never been persisted.
func (s *Snapshot) IsFirstRun() bool {
	return s.LastChecked.IsZero()
}

// UIDs returns the identity set recorded for the given source.
func (s *Snapshot) UIDs(src Source) map[string]bool {
	list := s.SourceAUIDs
	if src == SourceB {
		list = s.SourceBUIDs
	}
	set := make(map[string]bool, len(list))
	for _, uid := range list {
		set[uid] = true
	}
	return set
}

// KnownConflictSet returns the conflict identities already alerted on.
func (s *Snapshot) KnownConflictSet() map[ConflictID]bool {
	set := make(map[ConflictID]bool, len(s.KnownConflicts))
	for _, id := range s.KnownConflicts {
		set[id] = true
	}
	return set
}

// IsFailing reports whether the last fetch of src failed.
func (s *Snapshot) IsFailing(src Source) bool {
	for _, f := range s.FailingSources {
		if f == src {
			return true
		}
	}
	return false
}

// Normalize sorts every set so the serialized form is stable and diffable.
func (s *Snapshot) Normalize() {
	if s.SourceAUIDs == nil {
		s.SourceAUIDs = []string{}
	}
	if s.SourceBUIDs == nil {
		s.SourceBUIDs = []string{}
	}
	if s.KnownConflicts == nil {
		s.KnownConflicts = []ConflictID{}
	}
	sort.Strings(s.SourceAUIDs)
	sort.Strings(s.SourceBUIDs)
	sort.Slice(s.KnownConflicts, func(i, j int) bool {
		if s.KnownConflicts[i].A != s.KnownConflicts[j].A {
			return s.KnownConflicts[i].A < s.KnownConflicts[j].A
		}
		return s.KnownConflicts[i].B < s.KnownConflicts[j].B
	})
	sort.Slice(s.FailingSources, func(i, j int) bool {
		return s.FailingSources[i] < s.FailingSources[j]
	})
}

// SortedKeys returns the keys of a string set in ascending order.
func SortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
