package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/metacord-io/metacord/internal/api/middleware"
	"github.com/metacord-io/metacord/internal/registry"
)

// handlePublish transitions an analysis to PUBLISHED after reconciling every
// declared file against object storage.
// PUT /api/v1/studies/{studyId}/analyses/{analysisId}/publish?ignoreUndefinedMd5=
//
// Response codes:
//   - 200 OK: transition applied
//   - 404 Not Found: unknown analysis, or it belongs to a different study
//   - 409 Conflict: illegal transition, concurrent state change, or
//     reconciliation failure (missing objects, size or checksum mismatch)
//   - 503 Service Unavailable: storage service unreachable
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())
	studyID := r.PathValue("studyId")
	analysisID := r.PathValue("analysisId")

	ignoreUndefinedMD5, problem := parseBoolParam(r, "ignoreUndefinedMd5")
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	if err := s.lifecycle.Publish(r.Context(), studyID, analysisID, ignoreUndefinedMD5); err != nil {
		s.logger.Warn("Publish rejected",
			slog.String("correlation_id", correlationID),
			slog.String("study_id", studyID),
			slog.String("analysis_id", analysisID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	s.writeJSON(w, r, http.StatusOK, StateResponse{
		AnalysisID: analysisID,
		State:      registry.StatePublished.String(),
	})

	duration := time.Since(startTime)
	s.logger.Info("Analysis published",
		slog.String("correlation_id", correlationID),
		slog.String("study_id", studyID),
		slog.String("analysis_id", analysisID),
		slog.Duration("duration", duration),
	)
}

// handleUnpublish transitions a published analysis back to UNPUBLISHED.
// PUT /api/v1/studies/{studyId}/analyses/{analysisId}/unpublish
func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, registry.StateUnpublished, s.lifecycle.Unpublish)
}

// handleSuppress withdraws an analysis. SUPPRESSED is terminal.
// PUT /api/v1/studies/{studyId}/analyses/{analysisId}/suppress
func (s *Server) handleSuppress(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, registry.StateSuppressed, s.lifecycle.Suppress)
}

// handleTransition applies one reconciliation-free lifecycle transition.
func (s *Server) handleTransition(
	w http.ResponseWriter,
	r *http.Request,
	target registry.AnalysisState,
	transition func(ctx context.Context, studyID, analysisID string) error,
) {
	correlationID := middleware.GetCorrelationID(r.Context())
	studyID := r.PathValue("studyId")
	analysisID := r.PathValue("analysisId")

	if err := transition(r.Context(), studyID, analysisID); err != nil {
		s.logger.Warn("State transition rejected",
			slog.String("correlation_id", correlationID),
			slog.String("study_id", studyID),
			slog.String("analysis_id", analysisID),
			slog.String("target_state", target.String()),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	s.writeJSON(w, r, http.StatusOK, StateResponse{
		AnalysisID: analysisID,
		State:      target.String(),
	})

	s.logger.Info("Analysis state changed",
		slog.String("correlation_id", correlationID),
		slog.String("study_id", studyID),
		slog.String("analysis_id", analysisID),
		slog.String("state", target.String()),
	)
}
