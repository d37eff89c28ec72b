package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/types"
)

// Engine names stored on runs.
const (
	EngineLocal          = "local"
	EngineCloudWorkflows = "cloudworkflows"
)

// Engine is the durable execution substrate that drives a run through its stages.
type Engine interface {
	Name() string
	// Start schedules the first stage of a run that has already been stored.
	Start(ctx context.Context, run *types.WorkflowRun) error
	// Status reports the run's state without changing it.
	Status(ctx context.Context, runID uuid.UUID) (*Status, error)
	// Cancel moves a non-terminal run to canceled.
	Cancel(ctx context.Context, runID uuid.UUID) error
}

// Status is the engine's view of a run.
type Status struct {
	Type   types.RunStatus    `json:"type"`
	Result *types.SaveReceipt `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// RetryPolicy controls how a stage is retried after a transient failure.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy returns three attempts with exponential backoff from 500ms to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
	}
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return min(time.Duration(d), p.MaxBackoff)
}

// Do runs fn until it succeeds, fails with an error that is not transient, or has
// been tried MaxAttempts times. Waits between attempts stop early when ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !llm.IsTransient(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
