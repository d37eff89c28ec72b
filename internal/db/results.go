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

// SaveResults replaces the saved summary and job rows of a run in one transaction.
// Saving the same run twice leaves exactly one copy.
func (db *DB) SaveResults(ctx context.Context, run *types.WorkflowRun, ranked *types.RankedResults) (*types.SaveReceipt, error) {
	summaryJSON, err := json.Marshal(ranked.Summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}

	receipt := &types.SaveReceipt{
		RunID:     run.ID,
		SummaryID: uuid.New(),
		JobCount:  len(ranked.Jobs),
		SavedAt:   time.Now().UTC(),
	}

	err = pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM job_results WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to clear job results: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM search_summaries WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to clear summary: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO search_summaries (id, run_id, user_id, cv_ref, total_found, total_relevant,
			                               average_match_score, summary, saved_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			receipt.SummaryID, run.ID, run.UserID, run.CVRef, ranked.Summary.TotalFound,
			ranked.Summary.TotalRelevant, ranked.Summary.AverageMatchScore, summaryJSON, receipt.SavedAt,
		); err != nil {
			return fmt.Errorf("failed to insert summary: %w", err)
		}

		if len(ranked.Jobs) == 0 {
			return nil
		}
		b := &pgx.Batch{}
		for i, job := range ranked.Jobs {
			resultJSON, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("failed to marshal job %s: %w", job.JobID, err)
			}
			rank := job.Rank
			if rank == 0 {
				rank = i + 1
			}
			b.Queue(
				`INSERT INTO job_results (run_id, rank, job_id, title, company, source_url,
				                          match_score, recommendation, result)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				run.ID, rank, job.JobID, job.Title, job.Company, job.SourceURL,
				job.MatchScore, string(job.Recommendation), resultJSON,
			)
		}
		br := tx.SendBatch(ctx, b)
		for range ranked.Jobs {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert job result: %w", err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetSavedResults returns the saved summary and ranked jobs of a run, or nil, nil
// when nothing was saved for it.
func (db *DB) GetSavedResults(ctx context.Context, runID uuid.UUID) (*types.SavedResults, error) {
	saved := &types.SavedResults{RunID: runID}
	var summaryJSON []byte

	err := db.pool.QueryRow(ctx,
		`SELECT user_id, cv_ref, summary, saved_at FROM search_summaries WHERE run_id = $1`, runID,
	).Scan(&saved.UserID, &saved.CVRef, &summaryJSON, &saved.SavedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	if err := json.Unmarshal(summaryJSON, &saved.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT result FROM job_results WHERE run_id = $1 ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job results: %w", err)
	}
	defer rows.Close()

	saved.Jobs = []types.JobResult{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan job result: %w", err)
		}
		var job types.JobResult
		if err := json.Unmarshal(raw, &job); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		saved.Jobs = append(saved.Jobs, job)
	}
	return saved, rows.Err()
}
