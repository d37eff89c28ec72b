package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/job-matcher/internal/types"
)

const runColumns = `id, user_id, cv_ref, tracking_id, status, engine, execution_name,
	error_message, created_at, updated_at, completed_at`

// CreateRun inserts a new workflow run. CreatedAt and UpdatedAt are filled from the database.
func (db *DB) CreateRun(ctx context.Context, run *types.WorkflowRun) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO workflow_runs (id, user_id, cv_ref, tracking_id, status, engine, execution_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		run.ID, run.UserID, run.CVRef, run.TrackingID, run.Status, run.Engine, run.ExecutionName,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID. It returns nil, nil when the run does not exist.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*types.WorkflowRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, runID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRunsByStatus returns runs in the given status, oldest first.
func (db *DB) ListRunsByStatus(ctx context.Context, status types.RunStatus) ([]types.WorkflowRun, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []types.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// FinishRun moves a running run to a terminal status. It reports false without error
// when the run was already terminal, so the first terminal status wins.
func (db *DB) FinishRun(ctx context.Context, runID uuid.UUID, status types.RunStatus, errMsg string) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE workflow_runs
		 SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'running'`,
		runID, status, errMsg,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finish run: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// SetExecutionName records the external engine's handle for a run.
func (db *DB) SetExecutionName(ctx context.Context, runID uuid.UUID, name string) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE workflow_runs SET execution_name = $2, updated_at = NOW() WHERE id = $1`,
		runID, name,
	)
	if err != nil {
		return fmt.Errorf("failed to set execution name: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	return nil
}

func scanRun(row pgx.Row) (*types.WorkflowRun, error) {
	var run types.WorkflowRun
	err := row.Scan(&run.ID, &run.UserID, &run.CVRef, &run.TrackingID, &run.Status, &run.Engine,
		&run.ExecutionName, &run.Error, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
