// Package app assembles the stores, model client, pipeline and workflow engine
// selected by configuration. The CLI and the Cloud Function entry points share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/job-matcher/internal/config"
	"github.com/jonathan/job-matcher/internal/db"
	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/jonathan/job-matcher/internal/listings/sqlitestore"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/pipeline"
	"github.com/jonathan/job-matcher/internal/progress"
	"github.com/jonathan/job-matcher/internal/prompts"
	"github.com/jonathan/job-matcher/internal/storage"
	"github.com/jonathan/job-matcher/internal/workflow"
	"go.uber.org/zap"
)

// Options overrides parts of the assembly.
type Options struct {
	// Engine replaces cfg.Workflow.Engine when set.
	Engine string
	// LLM replaces the configured model client.
	LLM llm.Client
	// Files replaces the configured CV resolver.
	Files storage.Resolver
}

// App holds every long-lived component of a process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *db.DB
	Runs     workflow.RunStore
	Results  pipeline.ResultStore
	Tracker  *progress.Tracker
	Listings listings.Store
	Pipeline *pipeline.Pipeline
	Runner   *workflow.StepRunner
	Engine   workflow.Engine
	// Local is set when Engine is the in-process engine.
	Local   *workflow.LocalEngine
	Service *workflow.Service

	closers []func() error
}

// New builds the application. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (a *App, err error) {
	a = &App{Config: cfg, Logger: logging.OrNop(logger)}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
			a = nil
		}
	}()

	if err := prompts.Check(); err != nil {
		return a, err
	}

	engineName := cfg.Workflow.Engine
	if opts.Engine != "" {
		engineName = opts.Engine
	}

	if cfg.NeedsDatabase() || engineName == workflow.EngineCloudWorkflows {
		if err := cfg.RequireDatabase(); err != nil {
			return a, err
		}
		database, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return a, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = database
		a.closers = append(a.closers, func() error { database.Close(); return nil })
	}

	if a.DB != nil {
		a.Runs = a.DB
		a.Results = a.DB
	} else {
		a.Logger.Warn("no database configured, runs and results are kept in memory")
		a.Runs = workflow.NewMemoryRunStore()
		a.Results = pipeline.NewMemoryResultStore()
	}

	progressStore, err := a.openProgress(ctx)
	if err != nil {
		return a, err
	}
	a.Tracker = progress.NewTracker(progressStore, a.Logger)

	store, _, err := OpenListings(ctx, cfg, a.DB)
	if err != nil {
		return a, err
	}
	a.Listings = store
	if c, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	files := opts.Files
	if files == nil {
		resolver, closeFiles, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return a, fmt.Errorf("failed to create storage resolver: %w", err)
		}
		files = resolver
		a.closers = append(a.closers, closeFiles)
	}

	client := opts.LLM
	if client == nil {
		if err := cfg.RequireLLM(); err != nil {
			return a, err
		}
		client, err = llm.NewClient(ctx, llm.FromSettings(cfg.LLM))
		if err != nil {
			return a, fmt.Errorf("failed to create LLM client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
	}

	a.Pipeline = pipeline.New(pipeline.Deps{
		LLM:      client,
		Files:    files,
		Listings: a.Listings,
		Results:  a.Results,
		Logger:   a.Logger,
	}, PipelineOptions(cfg.Search))
	a.Runner = workflow.NewStepRunner(a.Pipeline, a.Runs, a.Tracker, a.Logger)

	switch engineName {
	case workflow.EngineLocal:
		a.Local = workflow.NewLocalEngine(a.Runs, a.Runner, RetryPolicy(cfg.Workflow), a.Logger)
		a.Engine = a.Local
	case workflow.EngineCloudWorkflows:
		engine, err := workflow.NewCloudWorkflowsEngine(ctx, workflow.CloudWorkflowsConfig{
			ProjectID:  cfg.Workflow.Project,
			Location:   cfg.Workflow.Location,
			WorkflowID: cfg.Workflow.WorkflowID,
		}, a.Runs, a.Runner, a.Logger)
		if err != nil {
			return a, fmt.Errorf("failed to create workflow engine: %w", err)
		}
		a.Engine = engine
		a.closers = append(a.closers, engine.Close)
	default:
		return a, fmt.Errorf("unknown workflow engine %q", engineName)
	}

	a.Service = workflow.NewService(a.Runs, a.Tracker, a.Engine, a.Results, a.Runner, a.Logger)
	return a, nil
}

func (a *App) openProgress(ctx context.Context) (progress.Store, error) {
	switch a.Config.Progress.Backend {
	case "postgres":
		if a.DB == nil {
			return nil, errors.New("progress backend postgres requires a database")
		}
		return a.DB, nil
	case "firestore":
		project := a.Config.Progress.Project
		if project == "" {
			project = a.Config.LLM.Project
		}
		store, err := progress.NewFirestoreStore(ctx, project, a.Config.Progress.Collection)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore progress store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "memory":
		return progress.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown progress backend %q", a.Config.Progress.Backend)
	}
}

// OpenListings opens the configured listing store. database may be nil unless the
// backend is postgres. The returned store also implements listings.Writer; the
// SQLite store additionally needs closing.
func OpenListings(ctx context.Context, cfg *config.Config, database *db.DB) (listings.Store, listings.Writer, error) {
	switch cfg.Listings.Backend {
	case "postgres":
		if database == nil {
			return nil, nil, errors.New("listings backend postgres requires a database")
		}
		return database, database, nil
	case "sqlite":
		store, err := sqlitestore.Open(ctx, cfg.Listings.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown listings backend %q", cfg.Listings.Backend)
	}
}

// PipelineOptions maps the search settings onto stage limits.
func PipelineOptions(s config.SearchConfig) pipeline.Options {
	return pipeline.Options{
		PerQueryLimit:       s.PerQueryLimit,
		MaxResults:          s.MaxResults,
		AnalysisConcurrency: s.AnalysisConcurrency,
		ExtractionBatchSize: s.ExtractionBatchSize,
	}
}

// RetryPolicy maps the workflow settings onto the local engine's retry policy.
func RetryPolicy(w config.WorkflowConfig) workflow.RetryPolicy {
	p := workflow.DefaultRetryPolicy()
	if w.MaxAttempts > 0 {
		p.MaxAttempts = w.MaxAttempts
	}
	if w.InitialBackoff > 0 {
		p.InitialBackoff = w.InitialBackoff
	}
	if w.MaxBackoff > 0 {
		p.MaxBackoff = w.MaxBackoff
	}
	return p
}

// Close stops the local engine, leaving its runs resumable, and releases every
// resource in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Local != nil {
		if err := a.Local.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
