package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/metacord-io/metacord/internal/api/middleware"
)

// handleRegisterType handles analysis-type registration.
// POST /api/v1/schemas - Register a new version of a named analysis type
//
// Request validation (returns 4xx):
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: Request body exceeds MaxRequestSize
//   - 400 Bad Request: Empty body, invalid JSON, malformed name, invalid schema
//
// Success response:
//   - 201 Created: the new version, with its assigned version number
func (s *Server) handleRegisterType(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	// Content-Type validation
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	req, problem := s.parseRegisterTypeRequest(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	registered, err := s.types.Register(r.Context(), req.Name, req.Schema, req.FileTypes)
	if err != nil {
		s.logger.Warn("Analysis type registration rejected",
			slog.String("correlation_id", correlationID),
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	response := AnalysisTypeResponse{
		ID:        registered.ID(),
		Name:      registered.Name,
		Version:   registered.Version,
		Schema:    registered.Schema,
		FileTypes: registered.FileTypes,
		CreatedAt: registered.CreatedAt,
	}

	s.writeJSON(w, r, http.StatusCreated, response)

	duration := time.Since(startTime)
	s.logger.Info("Analysis type registered",
		slog.String("correlation_id", correlationID),
		slog.String("analysis_type", registered.ID()),
		slog.Duration("duration", duration),
	)
}

// parseRegisterTypeRequest parses and validates the registration request body.
func (s *Server) parseRegisterTypeRequest(r *http.Request) (*RegisterTypeRequest, *ProblemDetail) {
	// Request size check (optimization: fail fast for known oversized requests)
	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		return nil, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		)
	}

	// Empty body check (better UX: specific error message)
	if r.ContentLength == 0 {
		return nil, BadRequest("Request body cannot be empty")
	}

	var req RegisterTypeRequest

	decoder := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err := decoder.Decode(&req); err != nil {
		return nil, BadRequest("Invalid JSON: " + err.Error())
	}

	if req.Name == "" {
		return nil, BadRequest("name is required")
	}

	if len(req.Schema) == 0 {
		return nil, BadRequest("schema is required")
	}

	return &req, nil
}
