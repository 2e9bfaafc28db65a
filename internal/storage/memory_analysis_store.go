package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/metacord-io/metacord/internal/identifier"
	"github.com/metacord-io/metacord/internal/registry"
)

// Compile-time interface assertions.
var (
	_ registry.AnalysisStore      = (*MemoryAnalysisStore)(nil)
	_ identifier.CommittedIDStore = (*MemoryAnalysisStore)(nil)
)

// MemoryAnalysisStore is a thread-safe in-memory registry.AnalysisStore for
// unit tests and local development. It mirrors the PostgreSQL store's
// semantics: business-key upserts with stored IDs winning, guarded state
// transitions and an append-only history.
type MemoryAnalysisStore struct {
	mu        sync.RWMutex
	analyses  map[string]*registry.Analysis
	history   map[string][]registry.AnalysisStateChange
	committed map[string]struct{}

	// donors/specimens/samples index system IDs by business key, so repeat
	// submissions reuse the stored entity like the unique constraints do.
	donors    map[string]string
	specimens map[string]string
	samples   map[string]string
}

// NewMemoryAnalysisStore creates an empty in-memory analysis store.
func NewMemoryAnalysisStore() *MemoryAnalysisStore {
	return &MemoryAnalysisStore{
		analyses:  make(map[string]*registry.Analysis),
		history:   make(map[string][]registry.AnalysisStateChange),
		committed: make(map[string]struct{}),
		donors:    make(map[string]string),
		specimens: make(map[string]string),
		samples:   make(map[string]string),
	}
}

// CreateAnalysis implements registry.AnalysisStore.
func (s *MemoryAnalysisStore) CreateAnalysis(_ context.Context, analysis *registry.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.analyses[analysis.AnalysisID]; ok {
		return fmt.Errorf("%w: %q", registry.ErrAnalysisAlreadyExists, analysis.AnalysisID)
	}

	for i := range analysis.Samples {
		composite := &analysis.Samples[i]

		donorKey := businessKey(composite.Donor.StudyID, composite.Donor.SubmitterDonorID)
		if stored, ok := s.donors[donorKey]; ok {
			composite.Donor.DonorID = stored
		} else {
			s.donors[donorKey] = composite.Donor.DonorID
		}

		composite.Specimen.DonorID = composite.Donor.DonorID

		specimenKey := businessKey(composite.Specimen.StudyID, composite.Specimen.SubmitterSpecimenID)
		if stored, ok := s.specimens[specimenKey]; ok {
			composite.Specimen.SpecimenID = stored
		} else {
			s.specimens[specimenKey] = composite.Specimen.SpecimenID
		}

		composite.Sample.SpecimenID = composite.Specimen.SpecimenID

		sampleKey := businessKey(composite.Sample.StudyID, composite.Sample.SubmitterSampleID)
		if stored, ok := s.samples[sampleKey]; ok {
			composite.Sample.SampleID = stored
		} else {
			s.samples[sampleKey] = composite.Sample.SampleID
		}
	}

	stored := *analysis
	stored.Samples = append([]registry.CompositeSample(nil), analysis.Samples...)
	stored.Files = append([]registry.File(nil), analysis.Files...)

	s.analyses[analysis.AnalysisID] = &stored

	return nil
}

// GetAnalysis implements registry.AnalysisStore.
func (s *MemoryAnalysisStore) GetAnalysis(_ context.Context, analysisID string) (*registry.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.analyses[analysisID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", registry.ErrAnalysisNotFound, analysisID)
	}

	analysis := *stored
	analysis.Samples = append([]registry.CompositeSample(nil), stored.Samples...)
	analysis.Files = append([]registry.File(nil), stored.Files...)

	return &analysis, nil
}

// GetAnalysisState implements registry.AnalysisStore.
func (s *MemoryAnalysisStore) GetAnalysisState(
	_ context.Context,
	analysisID string,
) (registry.AnalysisState, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.analyses[analysisID]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", registry.ErrAnalysisNotFound, analysisID)
	}

	return stored.State, stored.StudyID, nil
}

// UpdateState implements registry.AnalysisStore.
func (s *MemoryAnalysisStore) UpdateState(
	_ context.Context,
	analysisID string,
	from, to registry.AnalysisState,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.analyses[analysisID]
	if !ok {
		return fmt.Errorf("%w: %q", registry.ErrAnalysisNotFound, analysisID)
	}

	if stored.State != from {
		return fmt.Errorf("%w: %q is %s, expected %s",
			registry.ErrStateConflict, analysisID, stored.State, from)
	}

	stored.State = to
	stored.UpdatedAt = at

	if to == registry.StatePublished {
		publishedAt := at
		stored.PublishedAt = &publishedAt

		if stored.FirstPublishedAt == nil {
			firstPublishedAt := at
			stored.FirstPublishedAt = &firstPublishedAt
		}
	}

	s.history[analysisID] = append(s.history[analysisID],
		registry.NextHistoryRecord(analysisID, from, to, at))

	return nil
}

// GetStateHistory implements registry.AnalysisStore.
func (s *MemoryAnalysisStore) GetStateHistory(
	_ context.Context,
	analysisID string,
) ([]registry.AnalysisStateChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := append([]registry.AnalysisStateChange(nil), s.history[analysisID]...)

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].UpdatedAt.Before(history[j].UpdatedAt)
	})

	return history, nil
}

// GetFiles implements registry.AnalysisStore.
func (s *MemoryAnalysisStore) GetFiles(_ context.Context, analysisID string) ([]registry.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.analyses[analysisID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", registry.ErrAnalysisNotFound, analysisID)
	}

	return append([]registry.File(nil), stored.Files...), nil
}

// HealthCheck implements registry.AnalysisStore.
func (s *MemoryAnalysisStore) HealthCheck(context.Context) error {
	return nil
}

// AnalysisIDExists implements identifier.CommittedIDStore.
func (s *MemoryAnalysisStore) AnalysisIDExists(_ context.Context, analysisID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.committed[analysisID]

	return ok, nil
}

// CommitAnalysisID implements identifier.CommittedIDStore.
func (s *MemoryAnalysisStore) CommitAnalysisID(_ context.Context, analysisID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.committed[analysisID]; ok {
		return fmt.Errorf("%w: %q", identifier.ErrAnalysisIDCollision, analysisID)
	}

	s.committed[analysisID] = struct{}{}

	return nil
}

func businessKey(studyID, submitterID string) string {
	return studyID + "\x00" + submitterID
}
