// Package pipeline implements the five stages of a job search run: ParseCV, TuneSearch,
// SearchJobs, CombineAndRank and SaveResults. Each stage takes the previous stage's
// typed output and returns its own; orchestration, retries and checkpointing live in
// the workflow package.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/storage"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// ProgressEvent represents a progress update during stage execution
type ProgressEvent struct {
	Step     string  `json:"step"`
	Fraction float64 `json:"fraction"`
	Message  string  `json:"message"`
}

// ProgressCallback is called when stage progress occurs. SearchJobs and
// CombineAndRank call it from several goroutines.
type ProgressCallback func(event ProgressEvent)

// emitProgress calls the progress callback if configured
func emitProgress(cb ProgressCallback, step string, fraction float64, message string) {
	if cb != nil {
		cb(ProgressEvent{Step: step, Fraction: fraction, Message: message})
	}
}

// ResultStore persists the output of SaveResults.
type ResultStore interface {
	// SaveResults replaces any results saved earlier for the run.
	SaveResults(ctx context.Context, run *types.WorkflowRun, ranked *types.RankedResults) (*types.SaveReceipt, error)
	// GetSavedResults returns nil, nil when nothing was saved for the run.
	GetSavedResults(ctx context.Context, runID uuid.UUID) (*types.SavedResults, error)
}

// Options tunes the search and ranking stages.
type Options struct {
	PerQueryLimit       int
	MaxResults          int
	AnalysisConcurrency int
	ExtractionBatchSize int
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		PerQueryLimit:       10,
		MaxResults:          20,
		AnalysisConcurrency: 5,
		ExtractionBatchSize: 10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PerQueryLimit <= 0 {
		o.PerQueryLimit = d.PerQueryLimit
	}
	if o.MaxResults <= 0 {
		o.MaxResults = d.MaxResults
	}
	if o.AnalysisConcurrency <= 0 {
		o.AnalysisConcurrency = d.AnalysisConcurrency
	}
	if o.ExtractionBatchSize <= 0 {
		o.ExtractionBatchSize = d.ExtractionBatchSize
	}
	return o
}

// Deps are the collaborators the stages call.
type Deps struct {
	LLM      llm.Client
	Files    storage.Resolver
	Listings listings.Store
	Results  ResultStore
	Logger   *zap.Logger
}

// Pipeline executes individual stages. It holds no per-run state.
type Pipeline struct {
	llm      llm.Client
	files    storage.Resolver
	listings listings.Store
	results  ResultStore
	logger   *zap.Logger
	opts     Options
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	return &Pipeline{
		llm:      deps.LLM,
		files:    deps.Files,
		listings: deps.Listings,
		results:  deps.Results,
		logger:   logging.OrNop(deps.Logger),
		opts:     opts.withDefaults(),
	}
}

// WithLogger returns a copy of p that logs to logger.
func (p *Pipeline) WithLogger(logger *zap.Logger) *Pipeline {
	cp := *p
	cp.logger = logging.OrNop(logger)
	return &cp
}

// Results returns the store SaveResults writes to.
func (p *Pipeline) Results() ResultStore {
	return p.results
}

// profileJSON renders a profile for inclusion in a prompt.
func profileJSON(profile *types.CVProfile) (string, error) {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}
	return string(data), nil
}
