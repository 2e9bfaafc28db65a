// Package publish provides publish-time reconciliation of declared file
// metadata against the external object-storage tier: a retried HTTP gateway
// to the storage service and the classification algorithm that decides
// whether an analysis may transition to PUBLISHED.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/metacord-io/metacord/internal/config"
)

// Sentinel errors for storage gateway integration.
var (
	// ErrStorageService is returned when the storage service is unreachable
	// or answers with an unexpected shape. A definitive "not found" is not a
	// storage-service error; it is reported through Exists/DownloadSpec
	// results and classified by the reconciler.
	ErrStorageService = errors.New("storage service error")

	// ErrObjectNotFound is returned by DownloadSpec for a definitive 404.
	ErrObjectNotFound = errors.New("storage object not found")
)

type (
	// StorageSpec is the storage service's read-only report for one object.
	// Not persisted locally; fetched on demand during reconciliation.
	StorageSpec struct {
		ObjectID string `json:"objectId"`
		FileSize int64  `json:"objectSize"`
		FileMD5  string `json:"objectMd5"`
	}

	// Gateway abstracts the object-storage service.
	Gateway interface {
		// Exists reports whether the object is present in storage.
		Exists(ctx context.Context, objectID string) (bool, error)

		// DownloadSpec fetches the storage-side size and checksum report.
		// Returns ErrObjectNotFound for a definitive miss.
		DownloadSpec(ctx context.Context, objectID string) (*StorageSpec, error)
	}

	// GatewayConfig holds storage gateway connection settings.
	GatewayConfig struct {
		BaseURL string
		Timeout time.Duration
		Retries int
		Backoff time.Duration
	}

	// HTTPGateway reaches the storage service over HTTP with bounded retries.
	// Transient transport failures and 5xx responses are retried; a 404-class
	// response is definitive and never retried.
	HTTPGateway struct {
		baseURL string
		client  *http.Client
		retries int
		backoff time.Duration
	}
)

const (
	defaultGatewayTimeout = 15 * time.Second
	defaultGatewayRetries = 3
	defaultGatewayBackoff = 500 * time.Millisecond
)

// LoadGatewayConfig loads storage gateway configuration from environment
// variables with fallback to defaults.
func LoadGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		BaseURL: config.GetEnvStr("STORAGE_GATEWAY_URL", "http://localhost:9200"),
		Timeout: config.GetEnvDuration("STORAGE_GATEWAY_TIMEOUT", defaultGatewayTimeout),
		Retries: config.GetEnvInt("STORAGE_GATEWAY_RETRIES", defaultGatewayRetries),
		Backoff: config.GetEnvDuration("STORAGE_GATEWAY_BACKOFF", defaultGatewayBackoff),
	}
}

// NewHTTPGateway creates a storage gateway client.
func NewHTTPGateway(cfg *GatewayConfig) *HTTPGateway {
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}

	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		retries: retries,
		backoff: cfg.Backoff,
	}
}

// Exists implements Gateway.
func (g *HTTPGateway) Exists(ctx context.Context, objectID string) (bool, error) {
	spec, err := g.DownloadSpec(ctx, objectID)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}

		return false, err
	}

	return spec != nil, nil
}

// DownloadSpec implements Gateway.
func (g *HTTPGateway) DownloadSpec(ctx context.Context, objectID string) (*StorageSpec, error) {
	endpoint := g.baseURL + "/objects/" + objectID

	var lastErr error

	for attempt := 0; attempt < g.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s", ErrStorageService, ctx.Err().Error())
			case <-time.After(g.backoff * time.Duration(attempt)):
			}
		}

		spec, retriable, err := g.fetchSpec(ctx, endpoint)
		if err == nil {
			return spec, nil
		}

		if !retriable {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %s",
		ErrStorageService, endpoint, g.retries, lastErr.Error())
}

// fetchSpec performs a single spec request. The second return value reports
// whether the failure is worth retrying.
func (g *HTTPGateway) fetchSpec(ctx context.Context, endpoint string) (*StorageSpec, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrStorageService, err.Error())
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s", ErrStorageService, err.Error())
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		var spec StorageSpec
		if err := json.NewDecoder(resp.Body).Decode(&spec); err != nil {
			return nil, false, fmt.Errorf("%w: decoding spec: %s", ErrStorageService, err.Error())
		}

		return &spec, false, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// Definitive miss: a business-logic existence failure, not a
		// transport error. Never retried.
		return nil, false, ErrObjectNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("%w: status %d", ErrStorageService, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("%w: status %d", ErrStorageService, resp.StatusCode)
	}
}
