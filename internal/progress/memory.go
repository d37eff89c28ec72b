package progress

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/types"
)

// MemoryStore keeps progress records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]types.ProgressRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]types.ProgressRecord)}
}

// CreateProgress inserts rec. Inserting an existing tracking id is an error.
func (s *MemoryStore) CreateProgress(_ context.Context, rec *types.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TrackingID]; ok {
		return fmt.Errorf("progress record %s already exists", rec.TrackingID)
	}
	s.records[rec.TrackingID] = *rec
	return nil
}

// GetProgress returns a copy of the record, or nil, nil.
func (s *MemoryStore) GetProgress(_ context.Context, trackingID uuid.UUID) (*types.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[trackingID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// UpdateProgress applies fn under the store lock.
func (s *MemoryStore) UpdateProgress(_ context.Context, trackingID uuid.UUID, fn func(*types.ProgressRecord) error) (*types.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[trackingID]
	if !ok {
		return nil, fmt.Errorf("progress record %s: %w", trackingID, types.ErrNotFound)
	}
	if err := fn(&rec); err != nil {
		return nil, err
	}
	s.records[trackingID] = rec
	out := rec
	return &out, nil
}
