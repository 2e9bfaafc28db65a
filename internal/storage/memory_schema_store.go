package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/metacord-io/metacord/internal/schemas"
)

// Compile-time interface assertion.
var _ schemas.Store = (*MemorySchemaStore)(nil)

// MemorySchemaStore is a thread-safe in-memory schemas.Store for unit tests
// and local development.
type MemorySchemaStore struct {
	mu    sync.RWMutex
	types map[string][]*schemas.AnalysisType // name -> versions ascending
}

// NewMemorySchemaStore creates an empty in-memory analysis-type store.
func NewMemorySchemaStore() *MemorySchemaStore {
	return &MemorySchemaStore{
		types: make(map[string][]*schemas.AnalysisType),
	}
}

// InsertVersion implements schemas.Store.
func (s *MemorySchemaStore) InsertVersion(_ context.Context, analysisType *schemas.AnalysisType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.types[analysisType.Name]

	analysisType.Version = len(versions) + 1
	if analysisType.CreatedAt.IsZero() {
		analysisType.CreatedAt = time.Now().UTC()
	}

	stored := *analysisType
	s.types[analysisType.Name] = append(versions, &stored)

	return nil
}

// GetVersion implements schemas.Store.
func (s *MemorySchemaStore) GetVersion(_ context.Context, name string, version int) (*schemas.AnalysisType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.types[name]
	if version < 1 || version > len(versions) {
		return nil, fmt.Errorf("%w: %s:%d", schemas.ErrTypeNotFound, name, version)
	}

	copied := *versions[version-1]

	return &copied, nil
}

// LatestVersion implements schemas.Store.
func (s *MemorySchemaStore) LatestVersion(_ context.Context, name string) (*schemas.AnalysisType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.types[name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %q", schemas.ErrTypeNotFound, name)
	}

	copied := *versions[len(versions)-1]

	return &copied, nil
}

// ListVersions implements schemas.Store.
func (s *MemorySchemaStore) ListVersions(_ context.Context, name string) ([]*schemas.AnalysisType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.types[name]
	listed := make([]*schemas.AnalysisType, 0, len(versions))

	for _, analysisType := range versions {
		copied := *analysisType
		listed = append(listed, &copied)
	}

	return listed, nil
}

// List implements schemas.Store.
func (s *MemorySchemaStore) List(_ context.Context, filter schemas.ListFilter) (*schemas.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*schemas.AnalysisType

	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if len(filter.Names) > 0 && !containsString(filter.Names, name) {
			continue
		}

		for _, analysisType := range s.types[name] {
			if len(filter.Versions) > 0 && !containsInt(filter.Versions, analysisType.Version) {
				continue
			}

			copied := *analysisType
			if filter.HideSchema {
				copied.Schema = nil
			}

			matched = append(matched, &copied)
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	total := len(matched)

	start := filter.Offset
	if start > total {
		start = total
	}

	end := start + limit
	if end > total {
		end = total
	}

	return &schemas.Page{
		Types:  matched[start:end],
		Total:  total,
		Offset: filter.Offset,
		Limit:  limit,
	}, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}

	return false
}

func containsInt(values []int, target int) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}

	return false
}
