package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/pipeline"
	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/progress"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// ErrRunFinished is returned when a stage is requested for a run that already reached
// a terminal status.
var ErrRunFinished = errors.New("workflow run already finished")

// StartResult identifies a started workflow.
type StartResult struct {
	WorkflowRunID uuid.UUID `json:"workflow_run_id"`
	TrackingID    uuid.UUID `json:"tracking_id"`
}

// Service is the API surface for starting and observing workflows.
type Service struct {
	runs    RunStore
	tracker *progress.Tracker
	engine  Engine
	results pipeline.ResultStore
	runner  *StepRunner
	logger  *zap.Logger
}

// NewService wires the service. runner executes stages requested through ExecuteStage.
func NewService(runs RunStore, tracker *progress.Tracker, engine Engine, results pipeline.ResultStore, runner *StepRunner, logger *zap.Logger) *Service {
	return &Service{
		runs:    runs,
		tracker: tracker,
		engine:  engine,
		results: results,
		runner:  runner,
		logger:  logging.OrNop(logger),
	}
}

// Engine returns the engine runs are scheduled on.
func (s *Service) Engine() Engine {
	return s.engine
}

// StartWorkflow creates a progress record and a run for cvRef and schedules it.
// Submitting the same CV twice starts two independent runs.
func (s *Service) StartWorkflow(ctx context.Context, userID uuid.UUID, cvRef string) (*StartResult, error) {
	cvRef = strings.TrimSpace(cvRef)
	if cvRef == "" {
		return nil, &types.ValidationError{Field: "cv_ref", Message: "is required"}
	}
	if userID == uuid.Nil {
		return nil, &types.ValidationError{Field: "user_id", Message: "is required"}
	}

	trackingID, err := s.tracker.Create(ctx, userID)
	if err != nil {
		return nil, err
	}
	run := &types.WorkflowRun{
		ID:         uuid.New(),
		UserID:     userID,
		CVRef:      cvRef,
		TrackingID: trackingID,
		Status:     types.RunRunning,
		Engine:     s.engine.Name(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	if err := s.engine.Start(ctx, run); err != nil {
		if _, ferr := s.runner.Fail(context.WithoutCancel(ctx), run, steps.ParseCV, err); ferr != nil {
			s.logger.Error("failed to record start failure", zap.Error(ferr))
		}
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}

	s.logger.Info("workflow started",
		append(logging.RunFields(run.ID, ""),
			zap.String(logging.FieldTrackingID, trackingID.String()),
			zap.String(logging.FieldUserID, userID.String()),
			zap.String("engine", run.Engine))...)
	return &StartResult{WorkflowRunID: run.ID, TrackingID: trackingID}, nil
}

// GetProgress returns the caller's progress record, or nil when it does not exist.
func (s *Service) GetProgress(ctx context.Context, trackingID, userID uuid.UUID) (*types.ProgressRecord, error) {
	return s.tracker.Read(ctx, trackingID, userID)
}

// GetWorkflowStatus reports the state of one of the caller's runs.
func (s *Service) GetWorkflowStatus(ctx context.Context, runID, userID uuid.UUID) (*Status, error) {
	if _, err := s.ownedRun(ctx, runID, userID); err != nil {
		return nil, err
	}
	return s.engine.Status(ctx, runID)
}

// GetSavedResults returns the saved results of one of the caller's runs. A run without
// saved results yields an error wrapping types.ErrNotFound.
func (s *Service) GetSavedResults(ctx context.Context, runID, userID uuid.UUID) (*types.SavedResults, error) {
	if _, err := s.ownedRun(ctx, runID, userID); err != nil {
		return nil, err
	}
	saved, err := s.results.GetSavedResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("results for run %s: %w", runID, types.ErrNotFound)
	}
	return saved, nil
}

// CancelWorkflow cancels one of the caller's runs.
func (s *Service) CancelWorkflow(ctx context.Context, runID, userID uuid.UUID) error {
	if _, err := s.ownedRun(ctx, runID, userID); err != nil {
		return err
	}
	return s.engine.Cancel(ctx, runID)
}

// ListSteps returns the recorded step states of one of the caller's runs.
func (s *Service) ListSteps(ctx context.Context, runID, userID uuid.UUID) ([]types.StepRecord, error) {
	if _, err := s.ownedRun(ctx, runID, userID); err != nil {
		return nil, err
	}
	return s.runs.ListRunSteps(ctx, runID)
}

// ExecuteStage runs one stage on behalf of an external engine. Fatal stage errors
// fail the run; transient errors are returned for the engine to retry. Completing the
// last stage completes the run.
func (s *Service) ExecuteStage(ctx context.Context, runID uuid.UUID, stage string) (json.RawMessage, error) {
	if _, err := steps.Lookup(stage); err != nil {
		return nil, &types.ValidationError{Field: "stage", Message: err.Error()}
	}
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	if run.Status.Terminal() {
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, ErrRunFinished)
	}

	output, err := s.runner.Run(ctx, run, stage)
	if err != nil {
		if !llm.IsTransient(err) {
			if _, ferr := s.runner.Fail(context.WithoutCancel(ctx), run, stage, err); ferr != nil {
				s.logger.Error("failed to record workflow failure", zap.Error(ferr))
			}
		}
		return nil, err
	}

	if stage == steps.Order[len(steps.Order)-1] {
		if _, err := s.runner.Complete(ctx, run); err != nil {
			return nil, err
		}
	}
	return output, nil
}

// FailStage fails a run whose stage the external engine gave up retrying.
func (s *Service) FailStage(ctx context.Context, runID uuid.UUID, stage, message string) error {
	if _, err := steps.Lookup(stage); err != nil {
		return &types.ValidationError{Field: "stage", Message: err.Error()}
	}
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	if message == "" {
		message = "stage retries exhausted"
	}
	_, err = s.runner.Fail(ctx, run, stage, errors.New(message))
	return err
}

// ownedRun loads a run and checks that userID owns it.
func (s *Service) ownedRun(ctx context.Context, runID, userID uuid.UUID) (*types.WorkflowRun, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	if run.UserID != userID {
		return nil, fmt.Errorf("run %s: %w", runID, types.ErrForbidden)
	}
	return run, nil
}
