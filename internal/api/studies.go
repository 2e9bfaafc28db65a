package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/metacord-io/metacord/internal/api/middleware"
	"github.com/metacord-io/metacord/internal/registry"
)

// handleCreateStudy handles study creation.
// POST /api/v1/studies
//
// Response codes:
//   - 201 Created: the study record
//   - 400 Bad Request: empty body, invalid JSON or missing studyId
//   - 409 Conflict: the studyId is already taken
//   - 415 Unsupported Media Type: Content-Type must be application/json
func (s *Server) handleCreateStudy(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		WriteErrorResponse(w, r, s.logger, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		))

		return
	}

	if r.ContentLength == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("Request body cannot be empty"))

		return
	}

	var req StudyRequest

	decoder := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err := decoder.Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON: "+err.Error()))

		return
	}

	if strings.TrimSpace(req.StudyID) == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("studyId is required"))

		return
	}

	study := &registry.Study{
		StudyID:      req.StudyID,
		Name:         req.Name,
		Description:  req.Description,
		Organization: req.Organization,
		Info:         req.Info,
	}

	if err := s.studies.CreateStudy(r.Context(), study); err != nil {
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	s.logger.Info("Study created",
		slog.String("correlation_id", correlationID),
		slog.String("study_id", study.StudyID),
	)

	s.writeJSON(w, r, http.StatusCreated, mapStudyResponse(study))
}

// handleGetStudy returns one study.
// GET /api/v1/studies/{studyId}
func (s *Server) handleGetStudy(w http.ResponseWriter, r *http.Request) {
	studyID := r.PathValue("studyId")

	study, err := s.studies.GetStudy(r.Context(), studyID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	s.writeJSON(w, r, http.StatusOK, mapStudyResponse(study))
}
