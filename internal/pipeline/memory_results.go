package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/types"
)

// MemoryResultStore is an in-process ResultStore used by tests and the local CLI.
type MemoryResultStore struct {
	mu    sync.RWMutex
	saved map[uuid.UUID]types.SavedResults
}

// NewMemoryResultStore creates an empty store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{saved: make(map[uuid.UUID]types.SavedResults)}
}

// SaveResults replaces anything saved earlier for run.
func (s *MemoryResultStore) SaveResults(_ context.Context, run *types.WorkflowRun, ranked *types.RankedResults) (*types.SaveReceipt, error) {
	// Deep copy so later mutation by the caller does not leak into the store.
	data, err := json.Marshal(ranked)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	var cp types.RankedResults
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to copy results: %w", err)
	}
	for i := range cp.Jobs {
		if cp.Jobs[i].Rank == 0 {
			cp.Jobs[i].Rank = i + 1
		}
	}

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[run.ID] = types.SavedResults{
		RunID:   run.ID,
		UserID:  run.UserID,
		CVRef:   run.CVRef,
		Summary: cp.Summary,
		Jobs:    cp.Jobs,
		SavedAt: now,
	}
	return &types.SaveReceipt{
		RunID:     run.ID,
		SummaryID: uuid.New(),
		JobCount:  len(cp.Jobs),
		SavedAt:   now,
	}, nil
}

// GetSavedResults returns nil, nil when nothing was saved for runID.
func (s *MemoryResultStore) GetSavedResults(_ context.Context, runID uuid.UUID) (*types.SavedResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	saved, ok := s.saved[runID]
	if !ok {
		return nil, nil
	}
	return &saved, nil
}
