// Package workflow runs the five pipeline stages of a job search as a durable
// workflow. Engines schedule the stages; StepRunner executes one stage with
// checkpointing, step bookkeeping and progress reporting.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/pipeline"
	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/progress"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// StepRunner executes single stages of a run. Each stage reads its inputs from the
// checkpoints of the stages it depends on and writes its own output as a checkpoint.
type StepRunner struct {
	pipeline *pipeline.Pipeline
	runs     RunStore
	tracker  *progress.Tracker
	logger   *zap.Logger
}

// NewStepRunner creates a runner.
func NewStepRunner(p *pipeline.Pipeline, runs RunStore, tracker *progress.Tracker, logger *zap.Logger) *StepRunner {
	return &StepRunner{
		pipeline: p,
		runs:     runs,
		tracker:  tracker,
		logger:   logging.OrNop(logger),
	}
}

// Run executes stage for run and returns its checkpointed output. A stage that already
// has a checkpoint is not executed again.
func (r *StepRunner) Run(ctx context.Context, run *types.WorkflowRun, stage string) (json.RawMessage, error) {
	def, err := steps.Lookup(stage)
	if err != nil {
		return nil, err
	}
	logger := logging.With(r.logger, logging.RunFields(run.ID, stage)...)

	cp, err := r.runs.GetCheckpoint(ctx, run.ID, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if cp != nil {
		logger.Debug("stage already checkpointed")
		return cp.Output, nil
	}

	current, err := r.runs.GetRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Status.Terminal() {
		return nil, fmt.Errorf("run %s is %s: %w", run.ID, current.Status, ErrRunFinished)
	}
	if err := steps.ValidateDependencies(ctx, r.runs, run.ID, stage); err != nil {
		return nil, err
	}
	if err := r.runs.UpdateRunStep(ctx, run.ID, stage, types.StepInProgress, ""); err != nil {
		return nil, err
	}
	r.reportProgress(ctx, logger, func() error {
		return r.tracker.StageStarted(ctx, run.TrackingID, def.Index, run.ID)
	})
	logger.Info("stage started")

	onProgress := func(e pipeline.ProgressEvent) {
		r.reportProgress(ctx, logger, func() error {
			return r.tracker.StageProgress(ctx, run.TrackingID, def.Index, e.Fraction, run.ID)
		})
	}

	output, err := r.execute(ctx, run, stage, onProgress, logger)
	if err != nil {
		if uerr := r.runs.UpdateRunStep(context.WithoutCancel(ctx), run.ID, stage, types.StepFailed, err.Error()); uerr != nil {
			logger.Warn("failed to record step failure", zap.Error(uerr))
		}
		return nil, err
	}

	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s output: %w", stage, err)
	}
	if err := r.runs.SaveCheckpoint(ctx, run.ID, stage, data); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if err := r.runs.UpdateRunStep(ctx, run.ID, stage, types.StepCompleted, ""); err != nil {
		return nil, err
	}
	r.reportProgress(ctx, logger, func() error {
		return r.tracker.StageCompleted(ctx, run.TrackingID, def.Index, run.ID)
	})
	logger.Info("stage completed")
	return data, nil
}

func (r *StepRunner) execute(ctx context.Context, run *types.WorkflowRun, stage string, onProgress pipeline.ProgressCallback, logger *zap.Logger) (any, error) {
	p := r.pipeline.WithLogger(logger)

	switch stage {
	case steps.ParseCV:
		return p.ParseCV(ctx, run.CVRef, onProgress)

	case steps.TuneSearch:
		var profile types.CVProfile
		if err := r.load(ctx, run, steps.ParseCV, &profile); err != nil {
			return nil, err
		}
		return p.TuneSearch(ctx, &profile, onProgress)

	case steps.SearchJobs:
		var profile types.CVProfile
		var params types.SearchParameters
		if err := r.load(ctx, run, steps.ParseCV, &profile); err != nil {
			return nil, err
		}
		if err := r.load(ctx, run, steps.TuneSearch, &params); err != nil {
			return nil, err
		}
		return p.SearchJobs(ctx, &params, &profile, onProgress)

	case steps.CombineAndRank:
		var profile types.CVProfile
		var params types.SearchParameters
		var search types.SearchOutput
		if err := r.load(ctx, run, steps.ParseCV, &profile); err != nil {
			return nil, err
		}
		if err := r.load(ctx, run, steps.TuneSearch, &params); err != nil {
			return nil, err
		}
		if err := r.load(ctx, run, steps.SearchJobs, &search); err != nil {
			return nil, err
		}
		return p.CombineAndRank(ctx, &search, &params, &profile, onProgress)

	case steps.SaveResults:
		var ranked types.RankedResults
		if err := r.load(ctx, run, steps.CombineAndRank, &ranked); err != nil {
			return nil, err
		}
		return p.SaveResults(ctx, run, &ranked, onProgress)
	}
	return nil, fmt.Errorf("unknown step: %s", stage)
}

// load decodes the checkpointed output of stage into v.
func (r *StepRunner) load(ctx context.Context, run *types.WorkflowRun, stage string, v any) error {
	cp, err := r.runs.GetCheckpoint(ctx, run.ID, stage)
	if err != nil {
		return fmt.Errorf("failed to read %s checkpoint: %w", stage, err)
	}
	if cp == nil {
		return &steps.DependencyError{Step: stage, MissingDependencies: []string{stage}}
	}
	if err := json.Unmarshal(cp.Output, v); err != nil {
		return fmt.Errorf("failed to decode %s checkpoint: %w", stage, err)
	}
	if err := validateCheckpoint(v); err != nil {
		return fmt.Errorf("invalid %s checkpoint: %w", stage, err)
	}
	return nil
}

func validateCheckpoint(v any) error {
	switch out := v.(type) {
	case *types.CVProfile:
		return out.Validate()
	case *types.SearchParameters:
		return out.Validate()
	case *types.SearchOutput:
		return validateMatches(out.Jobs)
	case *types.RankedResults:
		return validateMatches(out.Jobs)
	}
	return nil
}

func validateMatches(jobs []types.JobResult) error {
	for i := range jobs {
		if err := jobs[i].ExperienceMatch.Validate(); err != nil {
			return fmt.Errorf("job %d: %w", i, err)
		}
	}
	return nil
}

// reportProgress runs a progress update. Progress is advisory: failures are logged
// and never fail the stage.
func (r *StepRunner) reportProgress(ctx context.Context, logger *zap.Logger, update func() error) {
	if r.tracker == nil || ctx.Err() != nil {
		return
	}
	if err := update(); err != nil {
		logger.Warn("failed to update progress", zap.Error(err))
	}
}

// Complete marks run completed and its progress at 100%. It reports false when the
// run had already reached a terminal status.
func (r *StepRunner) Complete(ctx context.Context, run *types.WorkflowRun) (bool, error) {
	ok, err := r.runs.FinishRun(ctx, run.ID, types.RunCompleted, "")
	if err != nil || !ok {
		return false, err
	}
	r.reportProgress(ctx, r.logger, func() error {
		return r.tracker.Complete(ctx, run.TrackingID, run.ID)
	})
	r.logger.Info("workflow completed", logging.RunFields(run.ID, "")...)
	return true, nil
}

// Fail marks run failed at stage and records the error on its progress. It reports
// false when the run had already reached a terminal status.
func (r *StepRunner) Fail(ctx context.Context, run *types.WorkflowRun, stage string, cause error) (bool, error) {
	return r.finish(ctx, run, types.RunFailed, stage, cause.Error())
}

// Canceled marks run canceled. Progress shows the stage that was interrupted.
func (r *StepRunner) Canceled(ctx context.Context, run *types.WorkflowRun) (bool, error) {
	stage, err := r.currentStage(ctx, run)
	if err != nil {
		return false, err
	}
	return r.finish(ctx, run, types.RunCanceled, stage, "workflow canceled")
}

func (r *StepRunner) finish(ctx context.Context, run *types.WorkflowRun, status types.RunStatus, stage, msg string) (bool, error) {
	ok, err := r.runs.FinishRun(ctx, run.ID, status, msg)
	if err != nil || !ok {
		return false, err
	}
	r.reportProgress(ctx, r.logger, func() error {
		return r.tracker.Fail(ctx, run.TrackingID, stage, msg, run.ID)
	})
	r.logger.Warn("workflow "+string(status), append(logging.RunFields(run.ID, stage), zap.String("error", msg))...)
	return true, nil
}

// currentStage returns the first stage of run that has not completed.
func (r *StepRunner) currentStage(ctx context.Context, run *types.WorkflowRun) (string, error) {
	remaining, err := steps.Remaining(ctx, r.runs, run.ID)
	if err != nil {
		return "", err
	}
	if len(remaining) == 0 {
		return steps.SaveResults, nil
	}
	return remaining[0], nil
}
