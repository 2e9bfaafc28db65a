// Package middleware provides HTTP middleware components for the registry API.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// contentTypeProblemJSON is the media type for RFC 7807 problem responses.
const contentTypeProblemJSON = "application/problem+json"

// publicEndpoints is a registry of paths that bypass rate limiting.
// Populated once during route setup, read-only afterwards.
//
// Only health check endpoints belong here: K8s probes must never be throttled
// or they would flap the pod.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint registers an endpoint that bypasses rate limiting.
// This should only be called during route setup for health check endpoints.
//
// Example:
//
//	middleware.RegisterPublicEndpoint("/ping")
//	middleware.RegisterPublicEndpoint("/health")
func RegisterPublicEndpoint(endpoint string) {
	publicEndpoints[endpoint] = true
}

// isPublicEndpoint reports whether the path was registered as public.
func isPublicEndpoint(path string) bool {
	return publicEndpoints[path]
}

// writeRFC7807Error writes an RFC 7807 compliant error response without
// importing the api package (which would create an import cycle).
func writeRFC7807Error(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	detail string,
	correlationID string,
) error {
	problem := map[string]interface{}{
		"type":          fmt.Sprintf("https://metacord.io/problems/%d", statusCode),
		"title":         http.StatusText(statusCode),
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
