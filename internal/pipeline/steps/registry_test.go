package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSteps map[string]types.StepStatus

func (f fakeSteps) GetRunStep(_ context.Context, runID uuid.UUID, step string) (*types.StepRecord, error) {
	status, ok := f[step]
	if !ok {
		return nil, nil
	}
	return &types.StepRecord{RunID: runID, Step: step, Status: status}, nil
}

type failingSteps struct{}

func (failingSteps) GetRunStep(context.Context, uuid.UUID, string) (*types.StepRecord, error) {
	return nil, errors.New("db down")
}

func TestStepRegistry(t *testing.T) {
	require.Len(t, StepRegistry, len(Order))
	for i, stepName := range Order {
		def, ok := StepRegistry[stepName]
		require.True(t, ok, "Step %s should be in registry", stepName)
		assert.Equal(t, stepName, def.Name)
		assert.Equal(t, i, def.Index)
		for _, dep := range def.Dependencies {
			assert.Less(t, StepRegistry[dep].Index, def.Index, "%s depends on later step %s", stepName, dep)
		}
	}
}

func TestDependencyError(t *testing.T) {
	err := &DependencyError{
		Step:                "test_step",
		MissingDependencies: []string{"dep1", "dep2"},
	}

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing dependencies")
	assert.Equal(t, []string{"dep1", "dep2"}, err.MissingDependencies)
}

func TestValidateDependencies(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()

	t.Run("unknown step", func(t *testing.T) {
		err := ValidateDependencies(ctx, fakeSteps{}, runID, "unknown_step")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown step")
	})

	t.Run("first stage has none", func(t *testing.T) {
		assert.NoError(t, ValidateDependencies(ctx, fakeSteps{}, runID, ParseCV))
	})

	t.Run("missing and failed dependencies", func(t *testing.T) {
		r := fakeSteps{ParseCV: types.StepCompleted, TuneSearch: types.StepFailed}
		err := ValidateDependencies(ctx, r, runID, SearchJobs)
		var depErr *DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, []string{TuneSearch}, depErr.MissingDependencies)
	})

	t.Run("satisfied", func(t *testing.T) {
		r := fakeSteps{ParseCV: types.StepCompleted, TuneSearch: types.StepCompleted}
		assert.NoError(t, ValidateDependencies(ctx, r, runID, SearchJobs))
	})

	t.Run("reader error", func(t *testing.T) {
		err := ValidateDependencies(ctx, failingSteps{}, runID, TuneSearch)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestRemaining(t *testing.T) {
	r := fakeSteps{ParseCV: types.StepCompleted, TuneSearch: types.StepCompleted, SearchJobs: types.StepInProgress}
	remaining, err := Remaining(context.Background(), r, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []string{SearchJobs, CombineAndRank, SaveResults}, remaining)
}
