package intakestore

import (
	"context"
	"sync"

	"github.com/yanqian/finedust/internal/domain/intake"
)

// MemoryStore is an in-memory intake.IntakeStore for tests/dev.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[intake.Date]intake.IntakeRecord
}

// NewMemoryStore constructs a store backed by process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[intake.Date]intake.IntakeRecord)}
}

// Lookup implements intake.IntakeStore.
func (s *MemoryStore) Lookup(_ context.Context, day intake.Date) (intake.IntakeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[day]
	return rec, ok, nil
}

// Persist implements intake.IntakeStore. Existing days are left untouched.
func (s *MemoryStore) Persist(_ context.Context, records []intake.IntakeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if _, exists := s.records[rec.Date]; exists {
			continue
		}
		s.records[rec.Date] = rec
	}
	return nil
}

// Len returns the number of cached days.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ intake.IntakeStore = (*MemoryStore)(nil)
