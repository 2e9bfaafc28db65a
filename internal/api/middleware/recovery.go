// Package middleware provides HTTP middleware components for the registry API.
package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// panicProblem mirrors the RFC 7807 shape the api package writes. It is
// redeclared here because importing internal/api from middleware would be a
// cycle.
type panicProblem struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail"`
	Instance      string `json:"instance"`
	CorrelationID string `json:"correlationId"`
}

// Recovery creates a middleware that turns handler panics into logged 500
// responses instead of dropped connections.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				cause := recover()
				if cause == nil {
					return
				}

				correlationID := GetCorrelationID(r.Context())

				logger.Error("Recovered from handler panic",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", correlationID),
					slog.Any("panic", cause),
					slog.String("stack_trace", string(debug.Stack())),
				)

				problem := panicProblem{
					Type:          fmt.Sprintf("https://metacord.io/problems/%d", http.StatusInternalServerError),
					Title:         "Internal Server Error",
					Status:        http.StatusInternalServerError,
					Detail:        "An unexpected error occurred while processing the request",
					Instance:      r.URL.Path,
					CorrelationID: correlationID,
				}

				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusInternalServerError)

				if err := json.NewEncoder(w).Encode(problem); err != nil {
					logger.Error("Failed to encode error response",
						slog.Any("error", err),
						slog.String("correlation_id", correlationID),
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
