package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/metacord-io/metacord/internal/registry"
)

// Compile-time interface assertion.
var _ registry.StudyStore = (*MemoryStudyStore)(nil)

// MemoryStudyStore is a thread-safe in-memory registry.StudyStore for unit
// tests and local development.
type MemoryStudyStore struct {
	mu      sync.RWMutex
	studies map[string]*registry.Study
}

// NewMemoryStudyStore creates an empty in-memory study store.
func NewMemoryStudyStore() *MemoryStudyStore {
	return &MemoryStudyStore{
		studies: make(map[string]*registry.Study),
	}
}

// CreateStudy implements registry.StudyStore.
func (s *MemoryStudyStore) CreateStudy(_ context.Context, study *registry.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.studies[study.StudyID]; ok {
		return fmt.Errorf("%w: %q", registry.ErrStudyAlreadyExists, study.StudyID)
	}

	if study.CreatedAt.IsZero() {
		study.CreatedAt = time.Now().UTC()
	}

	stored := *study
	s.studies[study.StudyID] = &stored

	return nil
}

// GetStudy implements registry.StudyStore.
func (s *MemoryStudyStore) GetStudy(_ context.Context, studyID string) (*registry.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.studies[studyID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", registry.ErrStudyNotFound, studyID)
	}

	copied := *stored

	return &copied, nil
}

// StudyExists implements registry.StudyStore.
func (s *MemoryStudyStore) StudyExists(_ context.Context, studyID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.studies[studyID]

	return ok, nil
}
