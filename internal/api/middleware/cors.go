// Package middleware provides HTTP middleware components for the registry API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSPolicy holds the cross-origin policy applied to every response.
// A single "*" origin allows any caller; otherwise the request origin must
// match one of the listed origins exactly.
type CORSPolicy struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// CORS creates a middleware that applies the given cross-origin policy and
// short-circuits preflight requests with 204.
func CORS(policy CORSPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := policy.resolveOrigin(r.Header.Get("Origin")); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			if len(policy.AllowedMethods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(policy.AllowedMethods, ", "))
			}

			if len(policy.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(policy.AllowedHeaders, ", "))
			}

			if policy.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(policy.MaxAge))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// resolveOrigin returns the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed.
func (p CORSPolicy) resolveOrigin(origin string) string {
	if len(p.AllowedOrigins) == 0 {
		return ""
	}

	if len(p.AllowedOrigins) == 1 && p.AllowedOrigins[0] == "*" {
		return "*"
	}

	for _, allowed := range p.AllowedOrigins {
		if origin == allowed {
			return origin
		}
	}

	return ""
}
