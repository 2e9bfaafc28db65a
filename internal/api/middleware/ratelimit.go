// Package middleware provides HTTP middleware components for the registry API.
package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier    int     = 2
	maxClients                 int     = 10000
	defaultGlobalRPS           int     = 100
	defaultClientRPS           int     = 50
	defaultAnonymousRPS        int     = 10
	thresholdMultiplier        float64 = 0.8
	thresholdPercentage        int     = 80
	rateLimiterCleanupInterval         = 5 * time.Minute
	rateLimiterIdleTimeout             = 1 * time.Hour
)

// clientIDHeader identifies the submitting pipeline for per-client limits.
// Requests without it fall into the anonymous tier.
const clientIDHeader = "X-Client-ID"

type (
	// RateLimiter provides rate limiting for incoming requests.
	//
	// Implementations may use in-memory token buckets (single-node deployment)
	// or distributed stores like Redis (multi-node deployment). The interface
	// enables zero-downtime migration between the two.
	RateLimiter interface {
		// Allow checks if a request should be allowed based on rate limits.
		// Returns true if allowed, false if rate limited.
		//
		// clientID identifies the submitting client; empty string selects
		// the anonymous tier.
		Allow(clientID string) bool
	}

	// InMemoryRateLimiter implements RateLimiter using golang.org/x/time/rate.
	//
	// Provides three-tier rate limiting:
	//  1. Global limit (applied to all requests)
	//  2. Per-client limit (requests carrying a client ID)
	//  3. Anonymous limit (requests without a client ID)
	//
	// Uses the token bucket algorithm with configurable burst capacity.
	// Memory cleanup runs periodically: clients idle longer than IdleTimeout
	// are removed.
	InMemoryRateLimiter struct {
		global        *rate.Limiter
		perClient     map[string]*clientLimiter
		anonymous     *rate.Limiter
		mu            sync.RWMutex
		cleanupTicker *time.Ticker
		done          chan struct{}

		// Configuration (stored for creating new client limiters and cleanup)
		clientRPS       int
		clientBurst     int
		cleanupInterval time.Duration
		idleTimeout     time.Duration
		maxClients      int
	}

	// clientLimiter tracks rate limit state for a single client.
	// Includes last access time for memory cleanup.
	clientLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
		mu         sync.Mutex
	}
)

// NewInMemoryRateLimiter creates a new in-memory rate limiter with three-tier
// limits.
//
// Burst capacity is computed automatically as 2 x rate unless overridden in
// config. Cleanup runs periodically to prevent unbounded memory growth.
//
// Example:
//
//	rl := NewInMemoryRateLimiter(&Config{
//	    GlobalRPS:    100,
//	    ClientRPS:    50,
//	    AnonymousRPS: 10,
//	})
//	defer rl.Close()
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	globalBurst := computeBurstCapacity(config.GlobalRPS, config.GlobalBurst)
	clientBurst := computeBurstCapacity(config.ClientRPS, config.ClientBurst)
	anonymousBurst := computeBurstCapacity(config.AnonymousRPS, config.AnonymousBurst)

	rl := &InMemoryRateLimiter{
		global:          rate.NewLimiter(rate.Limit(config.GlobalRPS), globalBurst),
		perClient:       make(map[string]*clientLimiter),
		anonymous:       rate.NewLimiter(rate.Limit(config.AnonymousRPS), anonymousBurst),
		done:            make(chan struct{}),
		clientRPS:       config.ClientRPS,
		clientBurst:     clientBurst,
		cleanupInterval: config.CleanupInterval,
		idleTimeout:     config.IdleTimeout,
		maxClients:      config.MaxClients,
	}

	rl.startCleanup()

	return rl
}

// computeBurstCapacity computes the burst capacity based on the rate and an
// optional override.
//
// If burstOverride is 0, burst is computed automatically as 2 x rate.
func computeBurstCapacity(rate, burstOverride int) int {
	if burstOverride > 0 {
		return burstOverride
	}

	return rate * burstCapacityMultiplier
}

// Allow checks if a request should be allowed based on rate limits.
// Implements the RateLimiter interface.
//
// Rate limiting is enforced in two steps:
//  1. Global limit (all requests)
//  2. Per-client limit OR anonymous limit
func (rl *InMemoryRateLimiter) Allow(clientID string) bool {
	// Check global limit first (fail fast)
	if !rl.global.Allow() {
		return false
	}

	if clientID == "" {
		return rl.anonymous.Allow()
	}

	rl.mu.RLock()
	cl, ok := rl.perClient[clientID]
	rl.mu.RUnlock()

	if !ok {
		// Lazy initialization: create limiter for this client
		rl.mu.Lock()
		// Double-check after acquiring write lock (avoid race)
		if cl, ok = rl.perClient[clientID]; !ok {
			cl = &clientLimiter{
				limiter:    rate.NewLimiter(rate.Limit(rl.clientRPS), rl.clientBurst),
				lastAccess: time.Now(),
			}

			rl.perClient[clientID] = cl

			// Operational monitoring: warn when approaching the max clients
			// limit, so operators can detect client ID proliferation before
			// hitting hard limits.
			currentCount := len(rl.perClient)
			threshold := int(float64(rl.maxClients) * thresholdMultiplier)

			if currentCount >= threshold {
				slog.Warn("rate limiter approaching max clients limit",
					"current_clients", currentCount,
					"max_clients", rl.maxClients,
					"threshold_percent", thresholdPercentage,
					"recommendation", "investigate potential client ID proliferation or increase max_clients limit")
			}
		}

		rl.mu.Unlock()
	}

	// Update last access time (for cleanup)
	cl.mu.Lock()
	cl.lastAccess = time.Now()
	cl.mu.Unlock()

	return cl.limiter.Allow()
}

// Close stops the cleanup goroutine and releases resources.
//
// Close is not part of the RateLimiter interface so implementations without
// cleanup needs (e.g. a Redis-backed limiter with connection pooling) can
// skip it. Use a type assertion where cleanup is needed:
//
//	if closer, ok := limiter.(io.Closer); ok {
//	    closer.Close()
//	}
func (rl *InMemoryRateLimiter) Close() error {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}

	close(rl.done)

	return nil
}

// startCleanup starts a background goroutine that periodically removes stale
// client limiters to prevent memory leaks.
func (rl *InMemoryRateLimiter) startCleanup() {
	cleanupInterval := rl.cleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = rateLimiterCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

// cleanup removes client limiters that haven't been accessed recently.
func (rl *InMemoryRateLimiter) cleanup() {
	idleTimeout := rl.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for clientID, cl := range rl.perClient {
		cl.mu.Lock()
		lastAccess := cl.lastAccess
		cl.mu.Unlock()

		if now.Sub(lastAccess) > idleTimeout {
			delete(rl.perClient, clientID)
		}
	}
}

// RateLimit returns a middleware that enforces rate limits on incoming
// requests.
//
// Registered public endpoints (health probes) bypass rate limiting entirely.
// The client tier is selected by the X-Client-ID request header; requests
// without it use the anonymous tier.
//
// When a request exceeds the rate limit, the middleware returns 429 Too Many
// Requests with an RFC 7807 body.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			clientID := r.Header.Get(clientIDHeader)

			if !limiter.Allow(clientID) {
				correlationID := GetCorrelationID(r.Context())

				detail := "Rate limit exceeded. Please retry after some time."
				if err := writeRFC7807Error(w, r, http.StatusTooManyRequests, detail, correlationID); err != nil {
					logger.Error("failed to write response with RFC 7807 error format",
						slog.String("correlation_id", correlationID),
						slog.String("path", r.URL.Path),
						slog.String("detail", detail),
						slog.String("error", err.Error()),
					)

					// Fallback to plain text if writeRFC7807Error fails
					http.Error(w, detail, http.StatusTooManyRequests)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
