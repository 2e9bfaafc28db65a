package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/metacord-io/metacord/internal/api/middleware"
)

// handleSubmit handles submission of one analysis payload to a study.
// POST /api/v1/studies/{studyId}/submit?ignoreAnalysisIdCollisions=
//
// The raw body is handed to the submission engine unparsed; the engine owns
// payload decoding so schema validation sees exactly what the client sent.
//
// Response codes:
//   - 201 Created: analysis created in UNPUBLISHED state
//   - 400 Bad Request: malformed payload, studyId mismatch, field validation
//   - 404 Not Found: study or referenced analysis type does not exist
//   - 409 Conflict: analysis ID collision
//   - 413 Payload Too Large: body exceeds MaxRequestSize
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 422 Unprocessable Entity: payload failed analysis-type schema validation
//   - 503 Service Unavailable: ID authority unreachable
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())
	studyID := r.PathValue("studyId")

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

	ignoreCollisions, problem := parseBoolParam(r, "ignoreAnalysisIdCollisions")
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Failed to read request body"))

		return
	}

	analysisID, err := s.submissions.Submit(r.Context(), studyID, raw, ignoreCollisions)
	if err != nil {
		s.logger.Warn("Submission rejected",
			slog.String("correlation_id", correlationID),
			slog.String("study_id", studyID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	s.writeJSON(w, r, http.StatusCreated, SubmitResponse{
		AnalysisID: analysisID,
		Status:     "ok",
	})

	duration := time.Since(startTime)
	s.logger.Info("Submission accepted",
		slog.String("correlation_id", correlationID),
		slog.String("study_id", studyID),
		slog.String("analysis_id", analysisID),
		slog.Int("payload_bytes", len(raw)),
		slog.Duration("duration", duration),
	)
}
