package api

import (
	"net/http"
)

// handleGetAnalysis performs the deep read of one analysis.
// GET /api/v1/studies/{studyId}/analyses/{analysisId}
//
// Returns the analysis record with its files, the composite
// donor/specimen/sample tree and the chronological state history.
//
// Response codes:
//   - 200 OK
//   - 404 Not Found: unknown analysis, or it belongs to a different study
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	studyID := r.PathValue("studyId")
	analysisID := r.PathValue("analysisId")

	analysis, history, err := s.lifecycle.Read(r.Context(), studyID, analysisID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	s.writeJSON(w, r, http.StatusOK, mapAnalysisResponse(analysis, history))
}

// handleGetState returns the current lifecycle state of one analysis.
// GET /api/v1/studies/{studyId}/analyses/{analysisId}/state
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	studyID := r.PathValue("studyId")
	analysisID := r.PathValue("analysisId")

	state, err := s.lifecycle.ReadState(r.Context(), studyID, analysisID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	s.writeJSON(w, r, http.StatusOK, StateResponse{
		AnalysisID: analysisID,
		State:      state.String(),
	})
}

// handleGetHistory returns the append-only state-change history of one
// analysis, ordered chronologically.
// GET /api/v1/studies/{studyId}/analyses/{analysisId}/history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	studyID := r.PathValue("studyId")
	analysisID := r.PathValue("analysisId")

	history, err := s.lifecycle.History(r.Context(), studyID, analysisID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	s.writeJSON(w, r, http.StatusOK, mapHistoryResponse(history))
}
