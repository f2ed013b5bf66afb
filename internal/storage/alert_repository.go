package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syncwatch/backend/internal/storage/models"
)

// AlertRepository stores dispatched alerts in the alert_log table.
type AlertRepository struct {
	BaseRepository
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Append inserts rec, assigning its ID and creation time when unset.
func (r *AlertRepository) Append(ctx context.Context, rec *models.AlertRecord) error {
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.Now()
	}
	if rec.Deliveries == nil {
		rec.Deliveries = map[string]string{}
	}

	deliveries, err := json.Marshal(rec.Deliveries)
	if err != nil {
		return fmt.Errorf("encoding deliveries: %w", err)
	}

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO alert_log (id, kind, property_name, source, subject, body, deliveries, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Kind, rec.PropertyName, rec.Source, rec.Subject, rec.Body,
		string(deliveries), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}

	return nil
}

// Recent returns up to limit alerts, newest first.
func (r *AlertRepository) Recent(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, kind, property_name, source, subject, body, deliveries, created_at
		FROM alert_log
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var records []models.AlertRecord
	for rows.Next() {
		var (
			rec        models.AlertRecord
			deliveries string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Kind, &rec.PropertyName, &rec.Source,
			&rec.Subject, &rec.Body, &deliveries, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		if err := json.Unmarshal([]byte(deliveries), &rec.Deliveries); err != nil {
			return nil, fmt.Errorf("decoding deliveries of %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
