package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/syncwatch/backend/internal/storage/models"
)

// FileSnapshotStore keeps every snapshot in one indented JSON document keyed
// by property name. Each Put rewrites the document atomically.
type FileSnapshotStore struct {
	path string
	mu   sync.Mutex
}

// NewFileSnapshotStore creates a store backed by the JSON file at path.
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

// Get returns the snapshot of a property, or an empty one if absent.
func (s *FileSnapshotStore) Get(_ context.Context, propertyName string) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}

	snap, ok := all[propertyName]
	if !ok {
		return models.NewSnapshot(propertyName), nil
	}
	snap.PropertyName = propertyName
	snap.Normalize()
	return &snap, nil
}

// Put replaces the snapshot of one property and rewrites the file.
func (s *FileSnapshotStore) Put(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}

	snap.Normalize()
	all[snap.PropertyName] = *snap

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshots: %w", err)
	}

	return writeFileAtomic(s.path, append(data, '\n'), 0o644)
}

// List returns every snapshot, ordered by property name.
func (s *FileSnapshotStore) List(_ context.Context) ([]models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}

	snaps := make([]models.Snapshot, 0, len(all))
	for name, snap := range all {
		snap.PropertyName = name
		snap.Normalize()
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].PropertyName < snaps[j].PropertyName
	})
	return snaps, nil
}

func (s *FileSnapshotStore) load() (map[string]models.Snapshot, error) {
	all := make(map[string]models.Snapshot)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(data) == 0 {
		return all, nil
	}

	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decoding snapshot file %s: %w", s.path, err)
	}
	return all, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	return nil
}

// WriteFileAtomic is writeFileAtomic for other packages that publish files.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return writeFileAtomic(path, data, perm)
}
