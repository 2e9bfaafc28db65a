// Package middleware provides HTTP middleware components for the registry API.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// correlationIDBytes is the entropy behind a generated ID; 8 bytes encode to
// 16 hex characters.
const correlationIDBytes = 8

// correlationIDKey is the context key for correlation ID.
type correlationIDKey struct{}

// CorrelationID creates a middleware that tags each request with a
// correlation ID. A caller-supplied X-Correlation-ID header is honored so
// submission pipelines can trace a request across services; otherwise a
// fresh ID is generated. The ID is echoed on the response and stored in the
// request context.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = newCorrelationID()
			}

			w.Header().Set("X-Correlation-ID", correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context.
// Returns "unknown" outside a correlated request, so log lines never carry
// an empty field.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}

func newCorrelationID() string {
	buf := make([]byte, correlationIDBytes)
	if _, err := rand.Read(buf); err != nil {
		// Timestamp fallback when crypto/rand is unavailable.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}

	return hex.EncodeToString(buf)
}
