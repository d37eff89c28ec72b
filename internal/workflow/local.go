package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

var (
	errCanceledByUser = errors.New("workflow canceled")
	errShuttingDown   = errors.New("engine shutting down")
)

// LocalEngine runs workflows in-process. Every stage output is checkpointed in the
// RunStore, so a run interrupted by a restart continues from its last completed stage
// when Resume is called.
type LocalEngine struct {
	runs   RunStore
	runner *StepRunner
	policy RetryPolicy
	logger *zap.Logger

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelCauseFunc
	wg     sync.WaitGroup
}

// NewLocalEngine creates an engine that executes stages with runner.
func NewLocalEngine(runs RunStore, runner *StepRunner, policy RetryPolicy, logger *zap.Logger) *LocalEngine {
	return &LocalEngine{
		runs:   runs,
		runner: runner,
		policy: policy,
		logger: logging.OrNop(logger),
		active: make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

// Name implements Engine.
func (e *LocalEngine) Name() string { return EngineLocal }

// Start implements Engine. The run executes in the background, detached from ctx.
func (e *LocalEngine) Start(_ context.Context, run *types.WorkflowRun) error {
	if !e.launch(run) {
		return fmt.Errorf("run %s is already executing", run.ID)
	}
	return nil
}

// Resume restarts every run still marked running, for example after a crash.
// Completed stages are not executed again. It returns the number of runs resumed.
func (e *LocalEngine) Resume(ctx context.Context) (int, error) {
	runs, err := e.runs.ListRunsByStatus(ctx, types.RunRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running workflows: %w", err)
	}
	resumed := 0
	for i := range runs {
		if runs[i].Engine != "" && runs[i].Engine != EngineLocal {
			continue
		}
		if e.launch(&runs[i]) {
			resumed++
		}
	}
	if resumed > 0 {
		e.logger.Info("resumed workflows", zap.Int("count", resumed))
	}
	return resumed, nil
}

// Status implements Engine.
func (e *LocalEngine) Status(ctx context.Context, runID uuid.UUID) (*Status, error) {
	return storedStatus(ctx, e.runs, runID)
}

// Cancel implements Engine. Cancelling a terminal run is a no-op.
func (e *LocalEngine) Cancel(ctx context.Context, runID uuid.UUID) error {
	run, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	if run.Status.Terminal() {
		return nil
	}

	e.mu.Lock()
	cancel, ok := e.active[runID]
	e.mu.Unlock()
	if ok {
		cancel(errCanceledByUser)
	}
	_, err = e.runner.Canceled(ctx, run)
	return err
}

// Shutdown interrupts executing runs without finishing them, so Resume picks them up
// on the next start, and waits for their goroutines until ctx is done.
func (e *LocalEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, cancel := range e.active {
		cancel(errShuttingDown)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until no run is executing.
func (e *LocalEngine) Wait() {
	e.wg.Wait()
}

func (e *LocalEngine) launch(run *types.WorkflowRun) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[run.ID]; ok {
		return false
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	e.active[run.ID] = cancel
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, run.ID)
			e.mu.Unlock()
			cancel(nil)
		}()
		e.execute(ctx, run)
	}()
	return true
}

// execute runs the remaining stages in order. A stage that fails with a fatal error,
// or keeps failing transiently after the retry policy is exhausted, fails the run.
func (e *LocalEngine) execute(ctx context.Context, run *types.WorkflowRun) {
	logger := logging.With(e.logger, logging.RunFields(run.ID, "")...)
	for _, stage := range steps.Order {
		err := e.policy.Do(ctx, func(attempt int) error {
			_, err := e.runner.Run(ctx, run, stage)
			if err != nil && llm.IsTransient(err) && ctx.Err() == nil {
				logger.Warn("stage failed transiently",
					zap.String(logging.FieldStage, stage),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
			return err
		})
		if err == nil {
			continue
		}

		switch context.Cause(ctx) {
		case errCanceledByUser:
			logger.Info("workflow canceled", zap.String(logging.FieldStage, stage))
			return
		case errShuttingDown:
			logger.Info("workflow interrupted by shutdown", zap.String(logging.FieldStage, stage))
			return
		}
		if _, ferr := e.runner.Fail(context.WithoutCancel(ctx), run, stage, err); ferr != nil {
			logger.Error("failed to record workflow failure", zap.Error(ferr))
		}
		return
	}

	if _, err := e.runner.Complete(ctx, run); err != nil {
		logger.Error("failed to record workflow completion", zap.Error(err))
	}
}

// storedStatus builds a Status from the run record and, for completed runs, the
// SaveResults checkpoint.
func storedStatus(ctx context.Context, runs RunStore, runID uuid.UUID) (*Status, error) {
	run, err := runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	status := &Status{Type: run.Status, Error: run.Error}
	if run.Status == types.RunCompleted {
		receipt, err := savedReceipt(ctx, runs, runID)
		if err != nil {
			return nil, err
		}
		status.Result = receipt
	}
	return status, nil
}

func savedReceipt(ctx context.Context, runs RunStore, runID uuid.UUID) (*types.SaveReceipt, error) {
	cp, err := runs.GetCheckpoint(ctx, runID, steps.SaveResults)
	if err != nil || cp == nil {
		return nil, err
	}
	var receipt types.SaveReceipt
	if err := json.Unmarshal(cp.Output, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode save receipt: %w", err)
	}
	return &receipt, nil
}
