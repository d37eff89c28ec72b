package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/app"
	"github.com/jonathan/job-matcher/internal/observability"
	"github.com/jonathan/job-matcher/internal/types"
	"github.com/jonathan/job-matcher/internal/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the job search workflow for one CV in process",
	Long: `Runs parse_cv -> tune_search -> search_jobs -> combine_and_rank -> save_results
for a CV with the in-process engine, printing progress until the run finishes.

The CV reference is resolved by the configured storage backend: an object name in
the CV bucket for gcs, or a path below storage.local-dir for local.`,
	RunE: runWorkflowCmd,
}

var (
	runCV           string
	runUserID       string
	runPollInterval time.Duration
	runJSON         bool
)

func init() {
	runCommand.Flags().StringVar(&runCV, "cv", "", "CV reference to analyze (required)")
	runCommand.Flags().StringVar(&runUserID, "user-id", "", "User that owns the run (default: a new random id)")
	runCommand.Flags().DurationVar(&runPollInterval, "poll", time.Second, "Progress polling interval")
	runCommand.Flags().BoolVar(&runJSON, "json", false, "Print the saved results as JSON instead of a summary")

	rootCmd.AddCommand(runCommand)
}

func runWorkflowCmd(cmd *cobra.Command, _ []string) error {
	if runCV == "" {
		return fmt.Errorf("--cv is required")
	}
	userID := uuid.New()
	if runUserID != "" {
		parsed, err := uuid.Parse(runUserID)
		if err != nil {
			return fmt.Errorf("invalid --user-id: %w", err)
		}
		userID = parsed
	}
	if runPollInterval <= 0 {
		return fmt.Errorf("--poll must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Engine: workflow.EngineLocal})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	started, err := a.Service.StartWorkflow(ctx, userID, runCV)
	if err != nil {
		return fmt.Errorf("failed to start workflow: %w", err)
	}
	logger.Debug("workflow started",
		zap.String("run_id", started.WorkflowRunID.String()),
		zap.String("tracking_id", started.TrackingID.String()))

	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(cmd.ErrOrStderr())

	status, err := awaitRun(ctx, a.Service, started, userID, runPollInterval, printer)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_ = a.Service.CancelWorkflow(context.WithoutCancel(ctx), started.WorkflowRunID, userID)
		}
		return err
	}

	if verbose {
		if records, err := a.Service.ListSteps(ctx, started.WorkflowRunID, userID); err == nil {
			printer.PrintSteps(records)
		}
	}

	if status.Type != types.RunCompleted {
		return fmt.Errorf("workflow %s %s: %s", started.WorkflowRunID, status.Type, status.Error)
	}

	results, err := a.Service.GetSavedResults(ctx, started.WorkflowRunID, userID)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	observability.NewPrinter(out).PrintResults(results)
	return nil
}

// awaitRun polls until the run reaches a terminal status, printing each progress
// change.
func awaitRun(ctx context.Context, svc *workflow.Service, started *workflow.StartResult, userID uuid.UUID, interval time.Duration, printer *observability.Printer) (*workflow.Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last types.ProgressRecord
	for {
		if rec, err := svc.GetProgress(ctx, started.TrackingID, userID); err == nil && rec != nil {
			if rec.Stage != last.Stage || rec.Percentage != last.Percentage || rec.Status != last.Status {
				printer.PrintProgress(rec)
				last = *rec
			}
		}

		status, err := svc.GetWorkflowStatus(ctx, started.WorkflowRunID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read workflow status: %w", err)
		}
		if status.Type.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
