// Package api provides the HTTP API server for the metadata registry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metacord-io/metacord/internal/api/middleware"
	"github.com/metacord-io/metacord/internal/registry"
	"github.com/metacord-io/metacord/internal/schemas"
)

type (
	// Dependencies carries the domain services and stores the server exposes.
	//
	// Configuration (what) stays in ServerConfig; dependencies (how) are
	// injected here, so tests can wire in-memory implementations without
	// touching config.
	Dependencies struct {
		Submissions *registry.SubmissionService
		Lifecycle   *registry.LifecycleService
		Types       *schemas.Registry
		Studies     registry.StudyStore
		Analyses    registry.AnalysisStore
		RateLimiter middleware.RateLimiter
	}

	// Server represents the HTTP API server.
	Server struct {
		httpServer  *http.Server
		handler     http.Handler
		logger      *slog.Logger
		config      *ServerConfig
		startTime   time.Time
		submissions *registry.SubmissionService
		lifecycle   *registry.LifecycleService
		types       *schemas.Registry
		studies     registry.StudyStore
		analyses    registry.AnalysisStore
		rateLimiter middleware.RateLimiter
	}
)

// NewServer creates a new HTTP server instance with structured logging and
// the full middleware stack.
func NewServer(cfg *ServerConfig, deps *Dependencies) *Server {
	// Create structured logger with configured log level
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Create base HTTP mux
	mux := http.NewServeMux()

	server := &Server{
		logger:      logger,
		config:      cfg,
		submissions: deps.Submissions,
		lifecycle:   deps.Lifecycle,
		types:       deps.Types,
		studies:     deps.Studies,
		analyses:    deps.Analyses,
		rateLimiter: deps.RateLimiter,
	}

	// Set up all API routes
	server.setupRoutes(mux)

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Apply middleware chain using functional options pattern.
	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. RateLimit - block requests before expensive operations (optional)
	//   4. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   5. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.CORSPolicy()),
	)

	server.handler = handler
	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Handler returns the fully wrapped HTTP handler. Used by tests to exercise
// routes through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	// Record server start time for uptime calculation
	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		s.logger.Info("Starting metadata registry API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server.
func (s *Server) shutdown() error {
	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	// Attempt graceful shutdown of HTTP server
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Close rate limiter to stop (InMemoryRateLimiter) background cleanup goroutines
	if s.rateLimiter != nil {
		s.logger.Info("Closing rate limiter")

		if limiter, ok := s.rateLimiter.(io.Closer); ok {
			if err := limiter.Close(); err != nil {
				s.logger.Error("Failed to close rate limiter", slog.String("error", err.Error()))
			} else {
				s.logger.Info("Rate limiter closed successfully")
			}
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

// writeJSON marshals v and writes it with the given status code. Marshaling
// happens before any header is written so failures can still produce a clean
// RFC 7807 response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		correlationID := middleware.GetCorrelationID(r.Context())
		s.logger.Error("Failed to marshal response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(data); err != nil {
		correlationID := middleware.GetCorrelationID(r.Context())
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
