// Package middleware provides HTTP middleware components for the registry API.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestLogger creates a middleware that emits one structured log line per
// completed request. Request starts are logged at debug level so the default
// configuration carries a single line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			correlationID := GetCorrelationID(r.Context())

			logger.Debug("HTTP request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("correlation_id", correlationID),
			)

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			logger.Info("HTTP request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", rw.status),
				slog.Int64("bytes_written", rw.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("user_agent", r.UserAgent()),
				slog.String("correlation_id", correlationID),
			)
		})
	}
}

// statusRecorder captures the status code and body size written by the
// wrapped handler.
type statusRecorder struct {
	http.ResponseWriter

	status int
	bytes  int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(p []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += int64(n)

	return n, err
}
