package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/job-matcher/internal/types"
)

const progressColumns = `tracking_id, user_id, stage, status, percentage, updated_by,
	error_message, started_at, updated_at, completed_at`

// CreateProgress inserts a new progress record.
func (db *DB) CreateProgress(ctx context.Context, rec *types.ProgressRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO progress_records (`+progressColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.TrackingID, rec.UserID, rec.Stage, rec.Status, rec.Percentage, rec.UpdatedBy,
		rec.Error, rec.StartedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create progress record: %w", err)
	}
	return nil
}

// GetProgress retrieves a progress record. It returns nil, nil when it does not exist.
func (db *DB) GetProgress(ctx context.Context, trackingID uuid.UUID) (*types.ProgressRecord, error) {
	rec, err := scanProgress(db.pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM progress_records WHERE tracking_id = $1`, trackingID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progress record: %w", err)
	}
	return rec, nil
}

// UpdateProgress locks the record, applies fn to it and writes it back in one
// transaction. A missing record yields an error wrapping types.ErrNotFound.
func (db *DB) UpdateProgress(ctx context.Context, trackingID uuid.UUID, fn func(*types.ProgressRecord) error) (*types.ProgressRecord, error) {
	var updated *types.ProgressRecord
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		rec, err := scanProgress(tx.QueryRow(ctx,
			`SELECT `+progressColumns+` FROM progress_records WHERE tracking_id = $1 FOR UPDATE`,
			trackingID))
		if err != nil {
			if err == pgx.ErrNoRows {
				return fmt.Errorf("progress record %s: %w", trackingID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to lock progress record: %w", err)
		}

		if err := fn(rec); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE progress_records
			 SET stage = $2, status = $3, percentage = $4, updated_by = $5,
			     error_message = $6, updated_at = $7, completed_at = $8
			 WHERE tracking_id = $1`,
			trackingID, rec.Stage, rec.Status, rec.Percentage, rec.UpdatedBy,
			rec.Error, rec.UpdatedAt, rec.CompletedAt,
		); err != nil {
			return fmt.Errorf("failed to update progress record: %w", err)
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanProgress(row pgx.Row) (*types.ProgressRecord, error) {
	var rec types.ProgressRecord
	if err := row.Scan(&rec.TrackingID, &rec.UserID, &rec.Stage, &rec.Status, &rec.Percentage,
		&rec.UpdatedBy, &rec.Error, &rec.StartedAt, &rec.UpdatedAt, &rec.CompletedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
