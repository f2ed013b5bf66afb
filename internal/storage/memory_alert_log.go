package storage

import (
	"context"
	"sync"
	"time"

	"github.com/syncwatch/backend/internal/storage/models"
)

// DefaultAlertRingSize bounds the in-memory alert log.
const DefaultAlertRingSize = 200

// MemoryAlertLog keeps the most recent alerts in a fixed-size ring.
type MemoryAlertLog struct {
	mu      sync.Mutex
	records []models.AlertRecord
	next    int
	full    bool
}

// NewMemoryAlertLog creates a ring holding up to size records.
func NewMemoryAlertLog(size int) *MemoryAlertLog {
	if size <= 0 {
		size = DefaultAlertRingSize
	}
	return &MemoryAlertLog{records: make([]models.AlertRecord, size)}
}

// Append stores rec, evicting the oldest record when the ring is full.
func (l *MemoryAlertLog) Append(_ context.Context, rec *models.AlertRecord) error {
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[l.next] = *rec
	l.next = (l.next + 1) % len(l.records)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (l *MemoryAlertLog) Recent(_ context.Context, limit int) ([]models.AlertRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.records)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]models.AlertRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + len(l.records)) % len(l.records)
		out = append(out, l.records[idx])
	}
	return out, nil
}
