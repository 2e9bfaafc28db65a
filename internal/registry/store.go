// Package registry: persistence interfaces the domain needs.
//
// The domain package defines these interfaces to specify what it needs for
// analysis and study persistence, without depending on concrete
// implementations. PostgreSQL and in-memory implementations live in
// internal/storage.
package registry

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrStudyNotFound is returned when the referenced study does not exist.
	ErrStudyNotFound = errors.New("study not found")

	// ErrStudyAlreadyExists is returned when creating a study whose ID is taken.
	ErrStudyAlreadyExists = errors.New("study already exists")

	// ErrAnalysisNotFound is returned when the referenced analysis does not exist.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrAnalysisAlreadyExists is returned when creating an analysis whose ID
	// already has a stored analysis. A committed-but-unused ID is not affected;
	// only a second stored analysis under the same ID conflicts.
	ErrAnalysisAlreadyExists = errors.New("analysis already exists")

	// ErrAnalysisMissingFiles is returned when an analysis that should own
	// files has an unexpectedly empty file set.
	ErrAnalysisMissingFiles = errors.New("analysis has no associated files")

	// ErrEntityNotRelatedToStudy is returned when the referenced entity exists
	// but belongs to a different study (cross-tenant access attempt).
	ErrEntityNotRelatedToStudy = errors.New("entity does not belong to study")
)

// AnalysisStore defines the persistence contract for the analysis graph and
// its lifecycle history.
//
// Implementations must provide:
//   - Atomicity: CreateAnalysis persists the composite graph, files and the
//     analysis row inside one transaction; a failure partway leaves no
//     durable partial state.
//   - Idempotent upsert: donors, specimens and samples are upserted by
//     business key (studyID + submitterID); a matching entity is updated in
//     place and its existing system ID is kept.
//   - Guarded transitions: UpdateState only applies when the stored state
//     equals the expected current state, and appends exactly one
//     AnalysisStateChange record in the same transaction.
type AnalysisStore interface {
	// CreateAnalysis persists a new analysis with its files and composite
	// entity tree. The analysis must be in UNPUBLISHED state. Entities whose
	// business keys already exist are updated in place; their stored system
	// IDs win and are written back into the returned analysis.
	//
	// Returns ErrAnalysisAlreadyExists when an analysis is already stored
	// under the same ID; the stored analysis is left untouched.
	CreateAnalysis(ctx context.Context, analysis *Analysis) error

	// GetAnalysis loads the analysis identified by analysisID together with
	// its files and composite sample/specimen/donor tree.
	//
	// Returns ErrAnalysisNotFound if no such analysis exists.
	GetAnalysis(ctx context.Context, analysisID string) (*Analysis, error)

	// GetAnalysisState returns the current lifecycle state and owning study
	// of an analysis without loading the full graph.
	GetAnalysisState(ctx context.Context, analysisID string) (AnalysisState, string, error)

	// UpdateState transitions an analysis from the expected current state to
	// a new state, refreshing updatedAt, publishedAt and firstPublishedAt per
	// the lifecycle rules, and appends one state-change record.
	//
	// Returns ErrAnalysisNotFound if the analysis does not exist and
	// ErrStateConflict if the stored state no longer equals from.
	UpdateState(ctx context.Context, analysisID string, from, to AnalysisState, at time.Time) error

	// GetStateHistory returns the append-only state-change history ordered by
	// updatedAt ascending. An analysis with no transitions yet returns an
	// empty slice, not an error.
	GetStateHistory(ctx context.Context, analysisID string) ([]AnalysisStateChange, error)

	// GetFiles returns the file entities owned by an analysis.
	GetFiles(ctx context.Context, analysisID string) ([]File, error)

	// HealthCheck verifies the storage backend is reachable.
	HealthCheck(ctx context.Context) error
}

// StudyStore defines the narrow study surface the submission orchestrator
// needs. Full study CRUD is out of scope for this core.
type StudyStore interface {
	// CreateStudy persists a new study.
	// Returns ErrStudyAlreadyExists if the ID is taken.
	CreateStudy(ctx context.Context, study *Study) error

	// GetStudy returns the study or ErrStudyNotFound.
	GetStudy(ctx context.Context, studyID string) (*Study, error)

	// StudyExists reports whether a study exists without loading it.
	StudyExists(ctx context.Context, studyID string) (bool, error)
}
