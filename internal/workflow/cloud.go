package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// executionsAPI is the part of the Workflows Executions client the engine needs.
type executionsAPI interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error)
	GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest) (*executionspb.Execution, error)
	CancelExecution(ctx context.Context, req *executionspb.CancelExecutionRequest) (*executionspb.Execution, error)
	Close() error
}

type executionsClient struct {
	client *executions.Client
}

func (c executionsClient) CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error) {
	return c.client.CreateExecution(ctx, req)
}

func (c executionsClient) GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest) (*executionspb.Execution, error) {
	return c.client.GetExecution(ctx, req)
}

func (c executionsClient) CancelExecution(ctx context.Context, req *executionspb.CancelExecutionRequest) (*executionspb.Execution, error) {
	return c.client.CancelExecution(ctx, req)
}

func (c executionsClient) Close() error {
	return c.client.Close()
}

// CloudWorkflowsConfig identifies the deployed workflow definition.
type CloudWorkflowsConfig struct {
	ProjectID  string
	Location   string
	WorkflowID string
}

// Parent is the resource name executions are created under.
func (c CloudWorkflowsConfig) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", c.ProjectID, c.Location, c.WorkflowID)
}

// executionArgument is the JSON argument each execution receives.
type executionArgument struct {
	RunID      string `json:"runId"`
	UserID     string `json:"userId"`
	CVRef      string `json:"cvRef"`
	TrackingID string `json:"trackingId"`
}

// CloudWorkflowsEngine delegates scheduling and retries to Google Cloud Workflows. The
// workflow definition calls the stage endpoint once per stage; the stage endpoint
// records completion and failure in the RunStore.
type CloudWorkflowsEngine struct {
	api    executionsAPI
	cfg    CloudWorkflowsConfig
	runs   RunStore
	runner *StepRunner
	logger *zap.Logger
}

// NewCloudWorkflowsEngine creates an engine using Application Default Credentials.
func NewCloudWorkflowsEngine(ctx context.Context, cfg CloudWorkflowsConfig, runs RunStore, runner *StepRunner, logger *zap.Logger) (*CloudWorkflowsEngine, error) {
	if cfg.ProjectID == "" || cfg.Location == "" || cfg.WorkflowID == "" {
		return nil, fmt.Errorf("cloud workflows engine needs a project, location and workflow id")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return newCloudWorkflowsEngine(executionsClient{client: client}, cfg, runs, runner, logger), nil
}

func newCloudWorkflowsEngine(api executionsAPI, cfg CloudWorkflowsConfig, runs RunStore, runner *StepRunner, logger *zap.Logger) *CloudWorkflowsEngine {
	return &CloudWorkflowsEngine{
		api:    api,
		cfg:    cfg,
		runs:   runs,
		runner: runner,
		logger: logging.OrNop(logger),
	}
}

// Close releases the executions client.
func (e *CloudWorkflowsEngine) Close() error {
	return e.api.Close()
}

// Name implements Engine.
func (e *CloudWorkflowsEngine) Name() string { return EngineCloudWorkflows }

// Start implements Engine by creating an execution and recording its name on the run.
func (e *CloudWorkflowsEngine) Start(ctx context.Context, run *types.WorkflowRun) error {
	arg, err := json.Marshal(executionArgument{
		RunID:      run.ID.String(),
		UserID:     run.UserID.String(),
		CVRef:      run.CVRef,
		TrackingID: run.TrackingID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow argument: %w", err)
	}

	exec, err := e.api.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    e.cfg.Parent(),
		Execution: &executionspb.Execution{Argument: string(arg)},
	})
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	if err := e.runs.SetExecutionName(ctx, run.ID, exec.GetName()); err != nil {
		return err
	}
	run.ExecutionName = exec.GetName()

	e.logger.Info("workflow execution created",
		append(logging.RunFields(run.ID, ""), zap.String("execution", exec.GetName()))...)
	return nil
}

// Status implements Engine. The stored run status wins once terminal; before that the
// execution state is reported.
func (e *CloudWorkflowsEngine) Status(ctx context.Context, runID uuid.UUID) (*Status, error) {
	status, err := storedStatus(ctx, e.runs, runID)
	if err != nil {
		return nil, err
	}
	if status.Type.Terminal() {
		return status, nil
	}

	run, err := e.runs.GetRun(ctx, runID)
	if err != nil || run == nil || run.ExecutionName == "" {
		return status, err
	}
	exec, err := e.api.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: run.ExecutionName})
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow execution: %w", err)
	}
	status.Type = ExecutionStatus(exec.GetState())
	if exec.GetError() != nil {
		status.Error = exec.GetError().GetPayload()
	}
	if status.Type == types.RunCompleted {
		if status.Result, err = savedReceipt(ctx, e.runs, runID); err != nil {
			return nil, err
		}
	}
	return status, nil
}

// Cancel implements Engine. Cancelling a terminal run is a no-op.
func (e *CloudWorkflowsEngine) Cancel(ctx context.Context, runID uuid.UUID) error {
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

	if run.ExecutionName != "" {
		if _, err := e.api.CancelExecution(ctx, &executionspb.CancelExecutionRequest{Name: run.ExecutionName}); err != nil {
			return fmt.Errorf("failed to cancel workflow execution: %w", err)
		}
	}
	_, err = e.runner.Canceled(ctx, run)
	return err
}

// ExecutionStatus maps a Cloud Workflows execution state to a run status.
func ExecutionStatus(state executionspb.Execution_State) types.RunStatus {
	switch state {
	case executionspb.Execution_SUCCEEDED:
		return types.RunCompleted
	case executionspb.Execution_FAILED:
		return types.RunFailed
	case executionspb.Execution_CANCELLED:
		return types.RunCanceled
	default:
		return types.RunRunning
	}
}
