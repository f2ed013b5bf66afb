package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/syncwatch/backend/internal/storage/models"
)

// SnapshotStore persists one Snapshot per property. Put replaces the whole
// record; Get returns an empty snapshot for a property never persisted.
type SnapshotStore interface {
	Get(ctx context.Context, propertyName string) (*models.Snapshot, error)
	Put(ctx context.Context, snap *models.Snapshot) error
	List(ctx context.Context) ([]models.Snapshot, error)
}

// AlertLog records every dispatched alert.
type AlertLog interface {
	Append(ctx context.Context, rec *models.AlertRecord) error
	Recent(ctx context.Context, limit int) ([]models.AlertRecord, error)
}

// Queryable represents a database connection that can execute queries.
// Both *sql.DB and *sql.Tx implement this interface.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	db *DB
}

// NewBaseRepository creates a new base repository with the given database connection.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Now returns the current time in UTC for database timestamps.
func (r *BaseRepository) Now() time.Time {
	return time.Now().UTC()
}

// GenerateID creates a new random UUID for use as a primary key.
func GenerateID() string {
	return uuid.NewString()
}
