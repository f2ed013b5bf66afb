package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syncwatch/backend/internal/storage/models"
)

// SnapshotRepository stores snapshots in the property_snapshots table.
type SnapshotRepository struct {
	BaseRepository
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const snapshotColumns = `property_name, source_a_uids, source_b_uids, known_conflicts, failing_sources, last_checked`

// Get retrieves the snapshot of a property, or an empty one if none was persisted.
func (r *SnapshotRepository) Get(ctx context.Context, propertyName string) (*models.Snapshot, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM property_snapshots WHERE property_name = ?`, propertyName)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewSnapshot(propertyName), nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot %s: %w", propertyName, err)
	}

	return snap, nil
}

// Put replaces the whole snapshot record of a property in a single statement.
func (r *SnapshotRepository) Put(ctx context.Context, snap *models.Snapshot) error {
	snap.Normalize()

	aUIDs, err := json.Marshal(snap.SourceAUIDs)
	if err != nil {
		return fmt.Errorf("encoding source A uids: %w", err)
	}
	bUIDs, err := json.Marshal(snap.SourceBUIDs)
	if err != nil {
		return fmt.Errorf("encoding source B uids: %w", err)
	}
	known, err := json.Marshal(snap.KnownConflicts)
	if err != nil {
		return fmt.Errorf("encoding known conflicts: %w", err)
	}
	failing := snap.FailingSources
	if failing == nil {
		failing = []models.Source{}
	}
	failingJSON, err := json.Marshal(failing)
	if err != nil {
		return fmt.Errorf("encoding failing sources: %w", err)
	}

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO property_snapshots (`+snapshotColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(property_name) DO UPDATE SET
			source_a_uids = excluded.source_a_uids,
			source_b_uids = excluded.source_b_uids,
			known_conflicts = excluded.known_conflicts,
			failing_sources = excluded.failing_sources,
			last_checked = excluded.last_checked,
			updated_at = excluded.updated_at
	`,
		snap.PropertyName, string(aUIDs), string(bUIDs), string(known), string(failingJSON),
		snap.LastChecked.UTC(), r.Now(),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot %s: %w", snap.PropertyName, err)
	}

	return nil
}

// List retrieves every persisted snapshot, ordered by property name.
func (r *SnapshotRepository) List(ctx context.Context) ([]models.Snapshot, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM property_snapshots ORDER BY property_name`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snaps = append(snaps, *snap)
	}

	return snaps, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s scanner) (*models.Snapshot, error) {
	var (
		snap                         models.Snapshot
		aUIDs, bUIDs, known, failing string
	)
	if err := s.Scan(&snap.PropertyName, &aUIDs, &bUIDs, &known, &failing, &snap.LastChecked); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(aUIDs), &snap.SourceAUIDs); err != nil {
		return nil, fmt.Errorf("decoding source A uids: %w", err)
	}
	if err := json.Unmarshal([]byte(bUIDs), &snap.SourceBUIDs); err != nil {
		return nil, fmt.Errorf("decoding source B uids: %w", err)
	}
	if err := json.Unmarshal([]byte(known), &snap.KnownConflicts); err != nil {
		return nil, fmt.Errorf("decoding known conflicts: %w", err)
	}
	if err := json.Unmarshal([]byte(failing), &snap.FailingSources); err != nil {
		return nil, fmt.Errorf("decoding failing sources: %w", err)
	}
	if len(snap.FailingSources) == 0 {
		snap.FailingSources = nil
	}

	snap.LastChecked = snap.LastChecked.UTC()
	snap.Normalize()
	return &snap, nil
}
