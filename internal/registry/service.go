// Package registry: the analysis lifecycle service.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reconciler verifies the declared file set against object storage before an
// analysis may be published. internal/publish provides the implementation;
// the domain only depends on this contract.
type Reconciler interface {
	Reconcile(ctx context.Context, files []File, ignoreUndefinedMD5 bool) error
}

// LifecycleService drives analysis state transitions and reads.
//
// Every transition is validated against the lifecycle rules first, then
// applied as a guarded, history-appending update. The read-modify-write is
// protected by the store's expected-state guard, so a concurrent transition
// surfaces as ErrStateConflict rather than a lost update.
type LifecycleService struct {
	analyses   AnalysisStore
	reconciler Reconciler
	events     EventPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewLifecycleService creates a LifecycleService.
func NewLifecycleService(
	analyses AnalysisStore,
	reconciler Reconciler,
	events EventPublisher,
	logger *slog.Logger,
) *LifecycleService {
	if logger == nil {
		logger = slog.Default()
	}

	if events == nil {
		events = noopEvents{}
	}

	return &LifecycleService{
		analyses:   analyses,
		reconciler: reconciler,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// Publish transitions an analysis to PUBLISHED after reconciling its declared
// files against object storage. Republishing an already published analysis is
// permitted and re-runs reconciliation; publishedAt is refreshed either way.
//
// ignoreUndefinedMD5 relaxes only the undefined-checksum case; missing
// objects and size mismatches always block publication.
func (s *LifecycleService) Publish(ctx context.Context, studyID, analysisID string, ignoreUndefinedMD5 bool) error {
	current, err := s.currentState(ctx, studyID, analysisID)
	if err != nil {
		return err
	}

	if err := ValidateStateTransition(current, StatePublished); err != nil {
		return err
	}

	files, err := s.analyses.GetFiles(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("load files for %q: %w", analysisID, err)
	}

	if err := s.reconciler.Reconcile(ctx, files, ignoreUndefinedMD5); err != nil {
		return err
	}

	return s.applyTransition(ctx, studyID, analysisID, current, StatePublished)
}

// Unpublish transitions an analysis back to UNPUBLISHED, taking it out of
// public view without discarding metadata. Idempotent on an already
// unpublished analysis.
func (s *LifecycleService) Unpublish(ctx context.Context, studyID, analysisID string) error {
	return s.transition(ctx, studyID, analysisID, StateUnpublished)
}

// Suppress withdraws an analysis. SUPPRESSED is terminal: no further
// transitions are accepted afterwards.
func (s *LifecycleService) Suppress(ctx context.Context, studyID, analysisID string) error {
	return s.transition(ctx, studyID, analysisID, StateSuppressed)
}

// ReadState returns the current lifecycle state of a study's analysis.
func (s *LifecycleService) ReadState(ctx context.Context, studyID, analysisID string) (AnalysisState, error) {
	return s.currentState(ctx, studyID, analysisID)
}

// Read loads the full analysis graph together with its state-change history.
//
// An analysis with an empty file set is reported as ErrAnalysisMissingFiles:
// every analysis is created with its declared files in one transaction, so an
// empty set signals stored-data corruption, not a legal variant.
func (s *LifecycleService) Read(ctx context.Context, studyID, analysisID string) (*Analysis, []AnalysisStateChange, error) {
	analysis, err := s.analyses.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, nil, err
	}

	if analysis.StudyID != studyID {
		return nil, nil, fmt.Errorf("%w: analysis %q belongs to study %q",
			ErrEntityNotRelatedToStudy, analysisID, analysis.StudyID)
	}

	if len(analysis.Files) == 0 {
		return nil, nil, fmt.Errorf("%w: %q", ErrAnalysisMissingFiles, analysisID)
	}

	history, err := s.analyses.GetStateHistory(ctx, analysisID)
	if err != nil {
		return nil, nil, fmt.Errorf("load state history for %q: %w", analysisID, err)
	}

	return analysis, history, nil
}

// History returns the append-only state-change history of a study's analysis.
func (s *LifecycleService) History(ctx context.Context, studyID, analysisID string) ([]AnalysisStateChange, error) {
	if _, err := s.currentState(ctx, studyID, analysisID); err != nil {
		return nil, err
	}

	history, err := s.analyses.GetStateHistory(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("load state history for %q: %w", analysisID, err)
	}

	return history, nil
}

// transition validates and applies one reconciliation-free state transition.
func (s *LifecycleService) transition(ctx context.Context, studyID, analysisID string, target AnalysisState) error {
	current, err := s.currentState(ctx, studyID, analysisID)
	if err != nil {
		return err
	}

	if err := ValidateStateTransition(current, target); err != nil {
		return err
	}

	return s.applyTransition(ctx, studyID, analysisID, current, target)
}

// applyTransition performs the guarded state update and emits the
// state-change event once the update has committed.
func (s *LifecycleService) applyTransition(
	ctx context.Context,
	studyID, analysisID string,
	from, to AnalysisState,
) error {
	at := s.now().UTC()

	if err := s.analyses.UpdateState(ctx, analysisID, from, to, at); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Analysis state changed",
		slog.String("analysis_id", analysisID),
		slog.String("study_id", studyID),
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	s.emitChange(ctx, studyID, analysisID, to, at)

	return nil
}

// currentState reads the state and enforces study ownership.
func (s *LifecycleService) currentState(ctx context.Context, studyID, analysisID string) (AnalysisState, error) {
	state, owner, err := s.analyses.GetAnalysisState(ctx, analysisID)
	if err != nil {
		return "", err
	}

	if owner != studyID {
		return "", fmt.Errorf("%w: analysis %q belongs to study %q",
			ErrEntityNotRelatedToStudy, analysisID, owner)
	}

	return state, nil
}

// emitChange publishes a state-change event, logging and swallowing failures.
func (s *LifecycleService) emitChange(ctx context.Context, studyID, analysisID string, state AnalysisState, at time.Time) {
	event := StateChangeEvent{
		StudyID:    studyID,
		AnalysisID: analysisID,
		State:      state,
		OccurredAt: at,
	}

	if err := s.events.PublishStateChange(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish state-change event",
			slog.String("analysis_id", analysisID),
			slog.String("state", state.String()),
			slog.String("error", err.Error()))
	}
}
