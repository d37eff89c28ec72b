// Package steps defines the pipeline stages, their order and dependencies, and the
// dependency check run before a stage executes.
package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/types"
)

// Stage names
const (
	ParseCV        = "parse_cv"
	TuneSearch     = "tune_search"
	SearchJobs     = "search_jobs"
	CombineAndRank = "combine_and_rank"
	SaveResults    = "save_results"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Index        int // position in the pipeline and progress slot
	Dependencies []string
}

// Order lists the stages in execution order.
var Order = []string{ParseCV, TuneSearch, SearchJobs, CombineAndRank, SaveResults}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	ParseCV: {
		Name:         ParseCV,
		Index:        0,
		Dependencies: []string{},
	},
	TuneSearch: {
		Name:         TuneSearch,
		Index:        1,
		Dependencies: []string{ParseCV},
	},
	SearchJobs: {
		Name:         SearchJobs,
		Index:        2,
		Dependencies: []string{ParseCV, TuneSearch},
	},
	CombineAndRank: {
		Name:         CombineAndRank,
		Index:        3,
		Dependencies: []string{SearchJobs},
	},
	SaveResults: {
		Name:         SaveResults,
		Index:        4,
		Dependencies: []string{CombineAndRank},
	},
}

// Lookup returns the definition of a stage.
func Lookup(name string) (StepDefinition, error) {
	def, ok := StepRegistry[name]
	if !ok {
		return StepDefinition{}, fmt.Errorf("unknown step: %s", name)
	}
	return def, nil
}

// StepReader reads the recorded state of a run's steps.
type StepReader interface {
	GetRunStep(ctx context.Context, runID uuid.UUID, step string) (*types.StepRecord, error)
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: missing dependencies: %v", e.Step, e.MissingDependencies)
}

// ValidateDependencies checks if all required dependencies for a step are completed
func ValidateDependencies(ctx context.Context, r StepReader, runID uuid.UUID, stepName string) error {
	def, err := Lookup(stepName)
	if err != nil {
		return err
	}

	var missing []string

	// Check each required dependency
	for _, dep := range def.Dependencies {
		step, err := r.GetRunStep(ctx, runID, dep)
		if err != nil {
			return fmt.Errorf("failed to check dependency %s: %w", dep, err)
		}
		if step == nil || step.Status != types.StepCompleted {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}

	return nil
}

// Remaining returns the stages of a run that have not completed, in order.
func Remaining(ctx context.Context, r StepReader, runID uuid.UUID) ([]string, error) {
	var remaining []string
	for _, name := range Order {
		step, err := r.GetRunStep(ctx, runID, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check step %s: %w", name, err)
		}
		if step != nil && step.Status == types.StepCompleted {
			continue
		}
		remaining = append(remaining, name)
	}
	return remaining, nil
}
