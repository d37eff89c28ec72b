// Package progress maintains the pollable progress record of a workflow run. Each of
// the five pipeline stages owns a 20 point slice of the 0..100 range; the record moves
// forward through those slices and ends at exactly 100 on completion or in an error
// state that clients render as 0.
package progress

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// Store persists progress records.
type Store interface {
	// CreateProgress inserts a new record.
	CreateProgress(ctx context.Context, rec *types.ProgressRecord) error
	// GetProgress returns the record or nil, nil when it does not exist.
	GetProgress(ctx context.Context, trackingID uuid.UUID) (*types.ProgressRecord, error)
	// UpdateProgress applies fn to the stored record atomically. A missing record
	// yields an error wrapping types.ErrNotFound.
	UpdateProgress(ctx context.Context, trackingID uuid.UUID, fn func(*types.ProgressRecord) error) (*types.ProgressRecord, error)
}

// Update is one progress transition reported by a stage.
type Update struct {
	Stage      string
	Status     types.ProgressStatus
	Percentage int
	UpdatedBy  uuid.UUID
	Error      string
}

// StageCount is the number of pipeline stages sharing the percentage range.
const StageCount = 5

const stageSpan = 100 / StageCount

// CreatedLabel is the stage token of a record no stage has touched yet.
const CreatedLabel = "created"

// Labels holds the running and done stage tokens of each pipeline stage, by index.
var Labels = [StageCount]struct{ Running, Done string }{
	{"parsing_cv", "cv_parsed"},
	{"tuning_search", "search_tuned"},
	{"searching_jobs", "jobs_found"},
	{"ranking_jobs", "jobs_ranked"},
	{"saving_results", "results_saved"},
}

// Percent maps a fraction of stage index to the overall percentage. Stage i owns
// [20i, 20i+20]; fraction is clamped to [0, 1].
func Percent(index int, fraction float64) int {
	if index < 0 {
		index = 0
	}
	if index >= StageCount {
		index = StageCount - 1
	}
	fraction = math.Max(0, math.Min(1, fraction))
	return index*stageSpan + int(math.Round(fraction*stageSpan))
}

// ErrorLabel is the stage token recorded when the named stage fails.
func ErrorLabel(stage string) string {
	return stage + "_error"
}

// Apply folds u into rec. Completed pins the record to the terminal label at 100.
// In-progress updates never move the percentage backwards and stay below 100. Once a
// record is terminal further updates are ignored and Apply reports false.
func Apply(rec *types.ProgressRecord, u Update, now time.Time) bool {
	if rec.Status == types.ProgressCompleted || rec.Status == types.ProgressError {
		return false
	}

	pct := u.Percentage
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	switch u.Status {
	case types.ProgressCompleted:
		rec.Stage = types.StageCompletedLabel
		rec.Percentage = 100
		rec.CompletedAt = &now
	case types.ProgressError:
		rec.Stage = u.Stage
		rec.Error = u.Error
		rec.CompletedAt = &now
	default:
		u.Status = types.ProgressInProgress
		if pct > 99 {
			pct = 99
		}
		if pct > rec.Percentage {
			rec.Percentage = pct
		}
		if u.Stage != "" {
			rec.Stage = u.Stage
		}
	}
	rec.Status = u.Status
	if u.UpdatedBy != uuid.Nil {
		rec.UpdatedBy = u.UpdatedBy
	}
	rec.UpdatedAt = now
	return true
}

// Tracker creates, advances and reads progress records.
type Tracker struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a tracker over store.
func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a new record owned by userID at 0% and returns its tracking id.
func (t *Tracker) Create(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	now := t.now()
	rec := &types.ProgressRecord{
		TrackingID: uuid.New(),
		UserID:     userID,
		Stage:      CreatedLabel,
		Status:     types.ProgressInProgress,
		UpdatedBy:  userID,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.store.CreateProgress(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("create progress: %w", err)
	}
	return rec.TrackingID, nil
}

// Advance applies u to the record. Updating a missing record is an error wrapping
// types.ErrNotFound.
func (t *Tracker) Advance(ctx context.Context, trackingID uuid.UUID, u Update) (*types.ProgressRecord, error) {
	rec, err := t.store.UpdateProgress(ctx, trackingID, func(rec *types.ProgressRecord) error {
		if !Apply(rec, u, t.now()) {
			t.logger.Debug("ignoring update to terminal progress record",
				zap.String("tracking_id", trackingID.String()),
				zap.String("stage", u.Stage))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("advance progress: %w", err)
	}
	return rec, nil
}

// Read returns the record for its owner, nil, nil when it does not exist, and an error
// wrapping types.ErrForbidden when userID does not own it.
func (t *Tracker) Read(ctx context.Context, trackingID, userID uuid.UUID) (*types.ProgressRecord, error) {
	rec, err := t.store.GetProgress(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("progress %s: %w", trackingID, types.ErrForbidden)
	}
	return rec, nil
}

// StageStarted moves the record to the start of stage index.
func (t *Tracker) StageStarted(ctx context.Context, trackingID uuid.UUID, index int, by uuid.UUID) error {
	_, err := t.Advance(ctx, trackingID, Update{
		Stage:      Labels[clampIndex(index)].Running,
		Status:     types.ProgressInProgress,
		Percentage: Percent(index, 0),
		UpdatedBy:  by,
	})
	return err
}

// StageProgress reports fraction of stage index as done.
func (t *Tracker) StageProgress(ctx context.Context, trackingID uuid.UUID, index int, fraction float64, by uuid.UUID) error {
	_, err := t.Advance(ctx, trackingID, Update{
		Stage:      Labels[clampIndex(index)].Running,
		Status:     types.ProgressInProgress,
		Percentage: Percent(index, fraction),
		UpdatedBy:  by,
	})
	return err
}

// StageCompleted moves the record to the end of stage index.
func (t *Tracker) StageCompleted(ctx context.Context, trackingID uuid.UUID, index int, by uuid.UUID) error {
	_, err := t.Advance(ctx, trackingID, Update{
		Stage:      Labels[clampIndex(index)].Done,
		Status:     types.ProgressInProgress,
		Percentage: Percent(index, 1),
		UpdatedBy:  by,
	})
	return err
}

// Fail records that stage failed with errMsg.
func (t *Tracker) Fail(ctx context.Context, trackingID uuid.UUID, stage, errMsg string, by uuid.UUID) error {
	_, err := t.Advance(ctx, trackingID, Update{
		Stage:     ErrorLabel(stage),
		Status:    types.ProgressError,
		UpdatedBy: by,
		Error:     errMsg,
	})
	return err
}

// Complete marks the run as finished at 100%.
func (t *Tracker) Complete(ctx context.Context, trackingID uuid.UUID, by uuid.UUID) error {
	_, err := t.Advance(ctx, trackingID, Update{
		Stage:      types.StageCompletedLabel,
		Status:     types.ProgressCompleted,
		Percentage: 100,
		UpdatedBy:  by,
	})
	return err
}

func clampIndex(index int) int {
	if index < 0 {
		return 0
	}
	if index >= StageCount {
		return StageCount - 1
	}
	return index
}
