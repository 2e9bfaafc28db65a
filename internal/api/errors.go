// Package api provides the HTTP API server for the metadata registry.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/metacord-io/metacord/internal/api/middleware"
	"github.com/metacord-io/metacord/internal/identifier"
	"github.com/metacord-io/metacord/internal/publish"
	"github.com/metacord-io/metacord/internal/registry"
	"github.com/metacord-io/metacord/internal/schemas"
)

// ProblemDetail represents an RFC 7807 Problem Details structure.
// See https://tools.ietf.org/html/rfc7807 for specification.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblemDetail creates a new RFC 7807 Problem Detail.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://metacord.io/problems/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WithInstance adds an instance URI to the problem detail.
func (p *ProblemDetail) WithInstance(instance string) *ProblemDetail {
	p.Instance = instance

	return p
}

// WithCorrelationID adds a correlation ID to the problem detail.
func (p *ProblemDetail) WithCorrelationID(correlationID string) *ProblemDetail {
	p.CorrelationID = correlationID

	return p
}

// WriteErrorResponse writes an RFC 7807 compliant error response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := middleware.GetCorrelationID(r.Context())

	// Add correlation ID if not already set
	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	// Add instance if not already set
	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	// Set proper content type for RFC 7807
	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Any("encode_error", err),
			slog.Int("status", problem.Status),
		)

		// Fallback to basic error response
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Common error constructors for frequently used errors.

// InternalServerError creates a 500 Internal Server Error problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusInternalServerError,
		"Internal Server Error",
		detail,
	)
}

// BadRequest creates a 400 Bad Request problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusBadRequest,
		"Bad Request",
		detail,
	)
}

// NotFound creates a 404 Not Found problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusNotFound,
		"Not Found",
		detail,
	)
}

// MethodNotAllowed creates a 405 Method Not Allowed problem.
func MethodNotAllowed(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusMethodNotAllowed,
		"Method Not Allowed",
		detail,
	)
}

// Conflict creates a 409 Conflict problem.
func Conflict(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusConflict,
		"Conflict",
		detail,
	)
}

// UnsupportedMediaType creates a 415 Unsupported Media Type problem.
func UnsupportedMediaType(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusUnsupportedMediaType,
		"Unsupported Media Type",
		detail,
	)
}

// PayloadTooLarge creates a 413 Payload Too Large problem.
func PayloadTooLarge(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusRequestEntityTooLarge,
		"Payload Too Large",
		detail,
	)
}

// UnprocessableEntity creates a 422 Unprocessable Entity problem.
func UnprocessableEntity(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusUnprocessableEntity,
		"Unprocessable Entity",
		detail,
	)
}

// ServiceUnavailable creates a 503 Service Unavailable problem.
func ServiceUnavailable(detail string) *ProblemDetail {
	return NewProblemDetail(
		http.StatusServiceUnavailable,
		"Service Unavailable",
		detail,
	)
}

// problemFromError maps a domain error to an RFC 7807 problem.
//
// The mapping is sentinel-based: handlers surface whatever wrapped error the
// domain returned and this single function decides the status code, so the
// taxonomy lives in one place.
//
// Classes:
//   - 404: unknown study, analysis or analysis type; entity owned by another study
//   - 409: ID collisions, concurrent state changes, illegal transitions,
//     storage reconciliation failures
//   - 400: malformed payloads, malformed identifiers, field-level validation
//   - 422: schema validation and version-policy failures
//   - 503: unreachable ID authority or storage service
//   - 500: everything else (detail withheld from the client)
func problemFromError(err error) *ProblemDetail {
	switch {
	case errors.Is(err, registry.ErrStudyNotFound),
		errors.Is(err, registry.ErrAnalysisNotFound),
		errors.Is(err, registry.ErrEntityNotRelatedToStudy),
		errors.Is(err, schemas.ErrTypeNotFound):
		return NotFound(err.Error())

	case errors.Is(err, registry.ErrStudyAlreadyExists),
		errors.Is(err, registry.ErrAnalysisAlreadyExists),
		errors.Is(err, identifier.ErrAnalysisIDCollision),
		errors.Is(err, registry.ErrStateConflict),
		errors.Is(err, registry.ErrIllegalStateTransition),
		errors.Is(err, publish.ErrMissingStorageObjects),
		errors.Is(err, publish.ErrMismatchingSizes),
		errors.Is(err, publish.ErrMismatchingChecksums):
		return Conflict(err.Error())

	case errors.Is(err, registry.ErrPayloadParsing),
		errors.Is(err, registry.ErrStudyIDMissing),
		errors.Is(err, registry.ErrStudyIDMismatch),
		errors.Is(err, identifier.ErrIDCorrupted),
		errors.Is(err, schemas.ErrMalformedTypeID),
		errors.Is(err, schemas.ErrMalformedTypeName),
		errors.Is(err, schemas.ErrInvalidSchema),
		errors.Is(err, schemas.ErrReservedProperty),
		errors.Is(err, registry.ErrFileNameEmpty),
		errors.Is(err, registry.ErrFileSizeNegative),
		errors.Is(err, registry.ErrFileMD5Invalid),
		errors.Is(err, registry.ErrFileAccessInvalid),
		errors.Is(err, registry.ErrSubmitterIDEmpty):
		return BadRequest(err.Error())

	case errors.Is(err, registry.ErrSchemaViolation),
		errors.Is(err, registry.ErrOutdatedTypeVersion):
		return UnprocessableEntity(err.Error())

	case errors.Is(err, identifier.ErrAuthorityUnavailable),
		errors.Is(err, publish.ErrStorageService):
		return ServiceUnavailable(err.Error())

	default:
		return InternalServerError("An unexpected error occurred while processing the request")
	}
}
