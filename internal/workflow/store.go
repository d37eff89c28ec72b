package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/types"
)

// RunStore persists runs, their step states and stage checkpoints. *db.DB implements it.
type RunStore interface {
	CreateRun(ctx context.Context, run *types.WorkflowRun) error
	// GetRun returns nil, nil when the run does not exist.
	GetRun(ctx context.Context, runID uuid.UUID) (*types.WorkflowRun, error)
	ListRunsByStatus(ctx context.Context, status types.RunStatus) ([]types.WorkflowRun, error)
	// FinishRun reports false when the run already had a terminal status.
	FinishRun(ctx context.Context, runID uuid.UUID, status types.RunStatus, errMsg string) (bool, error)
	SetExecutionName(ctx context.Context, runID uuid.UUID, name string) error

	GetRunStep(ctx context.Context, runID uuid.UUID, step string) (*types.StepRecord, error)
	ListRunSteps(ctx context.Context, runID uuid.UUID) ([]types.StepRecord, error)
	UpdateRunStep(ctx context.Context, runID uuid.UUID, step string, status types.StepStatus, errMsg string) error

	SaveCheckpoint(ctx context.Context, runID uuid.UUID, step string, output json.RawMessage) error
	// GetCheckpoint returns nil, nil when the stage has not completed.
	GetCheckpoint(ctx context.Context, runID uuid.UUID, step string) (*types.Checkpoint, error)
}

var _ steps.StepReader = (RunStore)(nil)

type stepKey struct {
	runID uuid.UUID
	step  string
}

// MemoryRunStore is an in-process RunStore. It does not survive a restart.
type MemoryRunStore struct {
	mu          sync.Mutex
	runs        map[uuid.UUID]*types.WorkflowRun
	steps       map[stepKey]*types.StepRecord
	checkpoints map[stepKey]*types.Checkpoint
}

// NewMemoryRunStore creates an empty store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs:        make(map[uuid.UUID]*types.WorkflowRun),
		steps:       make(map[stepKey]*types.StepRecord),
		checkpoints: make(map[stepKey]*types.Checkpoint),
	}
}

func (s *MemoryRunStore) CreateRun(_ context.Context, run *types.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	now := time.Now().UTC()
	run.CreatedAt, run.UpdatedAt = now, now
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryRunStore) GetRun(_ context.Context, runID uuid.UUID) (*types.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryRunStore) ListRunsByStatus(_ context.Context, status types.RunStatus) ([]types.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.WorkflowRun
	for _, run := range s.runs {
		if run.Status == status {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryRunStore) FinishRun(_ context.Context, runID uuid.UUID, status types.RunStatus, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return false, fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	if run.Status != types.RunRunning {
		return false, nil
	}
	now := time.Now().UTC()
	run.Status = status
	run.Error = errMsg
	run.UpdatedAt = now
	run.CompletedAt = &now
	return true, nil
}

func (s *MemoryRunStore) SetExecutionName(_ context.Context, runID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	run.ExecutionName = name
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryRunStore) GetRunStep(_ context.Context, runID uuid.UUID, step string) (*types.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.steps[stepKey{runID, step}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryRunStore) ListRunSteps(_ context.Context, runID uuid.UUID) ([]types.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.StepRecord
	for _, name := range steps.Order {
		if rec, ok := s.steps[stepKey{runID, name}]; ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MemoryRunStore) UpdateRunStep(_ context.Context, runID uuid.UUID, step string, status types.StepStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stepKey{runID, step}
	rec, ok := s.steps[key]
	if !ok {
		rec = &types.StepRecord{RunID: runID, Step: step, Status: types.StepPending}
		s.steps[key] = rec
	}
	rec.Transition(status, errMsg, time.Now().UTC())
	return nil
}

func (s *MemoryRunStore) SaveCheckpoint(_ context.Context, runID uuid.UUID, step string, output json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[stepKey{runID, step}] = &types.Checkpoint{
		RunID:       runID,
		Step:        step,
		Output:      append(json.RawMessage(nil), output...),
		CompletedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryRunStore) GetCheckpoint(_ context.Context, runID uuid.UUID, step string) (*types.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[stepKey{runID, step}]
	if !ok {
		return nil, nil
	}
	out := *cp
	return &out, nil
}
