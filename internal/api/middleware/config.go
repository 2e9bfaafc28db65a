// Package middleware provides HTTP middleware components for the registry API.
package middleware

import (
	"time"

	"github.com/metacord-io/metacord/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: applied to all requests
//   - Per-client: applied to requests carrying an X-Client-ID header
//   - Anonymous: applied to requests without a client ID
//
// Burst capacity allows temporary bursts above the sustained rate.
// If burst fields are 0, they are computed automatically as 2 x rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS    int // Default: 100
	ClientRPS    int // Default: 50
	AnonymousRPS int // Default: 10

	// Optional burst capacity overrides (0 = computed as 2 x rate)
	GlobalBurst    int
	ClientBurst    int
	AnonymousBurst int

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 10,000
}

// LoadConfig loads middleware config from environment variables with fallback
// to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS:    config.GetEnvInt("METACORD_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS:    config.GetEnvInt("METACORD_CLIENT_RPS", defaultClientRPS),
		AnonymousRPS: config.GetEnvInt("METACORD_ANONYMOUS_RPS", defaultAnonymousRPS),

		GlobalBurst:    config.GetEnvInt("METACORD_GLOBAL_BURST", 0),
		ClientBurst:    config.GetEnvInt("METACORD_CLIENT_BURST", 0),
		AnonymousBurst: config.GetEnvInt("METACORD_ANONYMOUS_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"METACORD_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("METACORD_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:  config.GetEnvInt("METACORD_RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}
