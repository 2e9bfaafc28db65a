// Package api provides the HTTP API server for the metadata registry.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/metacord-io/metacord/internal/api/middleware"
	"github.com/metacord-io/metacord/internal/config"
)

const (
	defaultPort           int    = 8080
	maxPort               int    = 65535
	defaultHost           string = "0.0.0.0"
	defaultCORSMaxAge     int    = 86400
	defaultTimeout               = 30 * time.Second
	defaultLogLevel              = slog.LevelInfo
	defaultMaxRequestSize int64  = 10485760 // 10 MB; submission payloads carry full sample trees
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidReadTimeout indicates the read timeout is zero or negative.
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")

	// ErrInvalidWriteTimeout indicates the write timeout is zero or negative.
	ErrInvalidWriteTimeout = errors.New("write timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidMaxRequestSize indicates the max request size is zero or negative.
	ErrInvalidMaxRequestSize = errors.New("max request size must be positive")
)

// ServerConfig holds HTTP server configuration.
// Pure configuration only - no runtime dependencies.
type ServerConfig struct {
	Port               int
	Host               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           slog.Level
	MaxRequestSize     int64
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int
}

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("METACORD_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("METACORD_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("METACORD_SERVER_READ_TIMEOUT", defaultTimeout),
		WriteTimeout:    config.GetEnvDuration("METACORD_SERVER_WRITE_TIMEOUT", defaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("METACORD_SERVER_TIMEOUT", defaultTimeout),
		LogLevel:        config.GetEnvLogLevel("METACORD_SERVER_LOG_LEVEL", defaultLogLevel),
		MaxRequestSize:  config.GetEnvInt64("METACORD_MAX_REQUEST_SIZE", defaultMaxRequestSize),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(
			config.GetEnvStr("METACORD_CORS_ALLOWED_ORIGINS", "*"),
		), // "*" is Development default - should be restricted in production
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("METACORD_CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr(
				"METACORD_CORS_ALLOWED_HEADERS",
				"Content-Type,X-Correlation-ID,X-Client-ID",
			),
		),
		CORSMaxAge: config.GetEnvInt("METACORD_CORS_MAX_AGE", defaultCORSMaxAge),
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CORSPolicy bundles the CORS fields into the middleware policy.
func (c *ServerConfig) CORSPolicy() middleware.CORSPolicy {
	return middleware.CORSPolicy{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize)
	}

	return nil
}
