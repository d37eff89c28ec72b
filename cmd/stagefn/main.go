// Package main is the Cloud Functions entry point. ExecuteStage serves the internal
// stage endpoints called by Cloud Workflows; StartOnUpload starts a workflow for
// each CV finalized in the upload bucket.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/jonathan/job-matcher/internal/app"
	"github.com/jonathan/job-matcher/internal/config"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/server"
	"github.com/jonathan/job-matcher/internal/trigger"
	"github.com/jonathan/job-matcher/internal/workflow"
)

var (
	stageHandler  http.Handler
	uploadHandler *trigger.UploadHandler
	once          sync.Once
	initErr       error
)

func init() {
	functions.HTTP("ExecuteStage", handleStage)
	functions.CloudEvent("StartOnUpload", handleUpload)
}

// main is required by the Go Functions Framework.
func main() {}

// setup builds the shared application once per instance.
func setup() error {
	once.Do(func() {
		initErr = initialize(context.Background())
	})
	return initErr
}

func initialize(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("JOBMATCH_CONFIG"))
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	logger, err := logging.New(true, cfg.Log.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// Function instances are not long lived, so runs always execute on Cloud Workflows.
	a, err := app.New(ctx, cfg, logger, app.Options{Engine: workflow.EngineCloudWorkflows})
	if err != nil {
		return err
	}

	stageHandler, err = server.NewStageHandler(a.Service, cfg.Auth.StageSecret, logger)
	if err != nil {
		return err
	}
	uploadHandler = trigger.NewUploadHandler(a.Service, cfg.Storage.UploadPrefix, logger)
	return nil
}

func handleStage(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		log.Printf("CRITICAL: initialization failed: %v", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	stageHandler.ServeHTTP(w, r)
}

func handleUpload(ctx context.Context, e cloudevents.Event) error {
	if err := setup(); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	return uploadHandler.Handle(ctx, e)
}
