package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/job-matcher/internal/types"
)

// -----------------------------------------------------------------------------
// Run Steps Methods
// -----------------------------------------------------------------------------

const stepColumns = `run_id, step, status, attempts, started_at, completed_at, duration_ms, error_message`

// GetRunStep retrieves a run step by run_id and step name. It returns nil, nil when
// the step has never started.
func (db *DB) GetRunStep(ctx context.Context, runID uuid.UUID, stepName string) (*types.StepRecord, error) {
	step, err := scanStep(db.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM run_steps WHERE run_id = $1 AND step = $2`,
		runID, stepName,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run step: %w", err)
	}
	return step, nil
}

// ListRunSteps retrieves all steps for a run in the order they started
func (db *DB) ListRunSteps(ctx context.Context, runID uuid.UUID) ([]types.StepRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM run_steps
		 WHERE run_id = $1
		 ORDER BY started_at NULLS LAST, step`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps []types.StepRecord
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// UpdateRunStep records a status transition for one step, creating the row on first use.
func (db *DB) UpdateRunStep(ctx context.Context, runID uuid.UUID, stepName string, status types.StepStatus, errMsg string) error {
	// Get current step to carry attempts and start time forward
	current, err := db.GetRunStep(ctx, runID, stepName)
	if err != nil {
		return err
	}
	if current == nil {
		current = &types.StepRecord{RunID: runID, Step: stepName}
	}
	current.Transition(status, errMsg, time.Now())

	_, err = db.pool.Exec(ctx,
		`INSERT INTO run_steps (run_id, step, status, attempts, started_at, completed_at, duration_ms, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id, step) DO UPDATE
		 SET status = EXCLUDED.status, attempts = EXCLUDED.attempts,
		     started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at,
		     duration_ms = EXCLUDED.duration_ms, error_message = EXCLUDED.error_message,
		     updated_at = NOW()`,
		runID, stepName, current.Status, current.Attempts, current.StartedAt,
		current.CompletedAt, current.DurationMs, current.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to update run step status: %w", err)
	}
	return nil
}

func scanStep(row pgx.Row) (*types.StepRecord, error) {
	var step types.StepRecord
	if err := row.Scan(&step.RunID, &step.Step, &step.Status, &step.Attempts, &step.StartedAt,
		&step.CompletedAt, &step.DurationMs, &step.Error); err != nil {
		return nil, err
	}
	return &step, nil
}

// -----------------------------------------------------------------------------
// Run Checkpoints Methods
// -----------------------------------------------------------------------------

// SaveCheckpoint stores the output of a completed step, replacing any earlier checkpoint
// for the same step.
func (db *DB) SaveCheckpoint(ctx context.Context, runID uuid.UUID, stepName string, output json.RawMessage) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO run_checkpoints (run_id, step, output)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, step) DO UPDATE
		 SET output = EXCLUDED.output, completed_at = NOW()`,
		runID, stepName, []byte(output),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint for a specific step, or nil, nil when the
// step has not completed.
func (db *DB) GetCheckpoint(ctx context.Context, runID uuid.UUID, stepName string) (*types.Checkpoint, error) {
	var checkpoint types.Checkpoint
	var output []byte

	err := db.pool.QueryRow(ctx,
		`SELECT run_id, step, output, completed_at
		 FROM run_checkpoints
		 WHERE run_id = $1 AND step = $2`,
		runID, stepName,
	).Scan(&checkpoint.RunID, &checkpoint.Step, &output, &checkpoint.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	checkpoint.Output = json.RawMessage(output)
	return &checkpoint, nil
}
