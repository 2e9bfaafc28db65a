// Package identifier issues and validates durable identifiers for the
// analysis graph: business-key IDs for donors, specimens, samples and files
// via an external ID authority, and analysis IDs with bespoke collision
// semantics (see resolver.go).
package identifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for ID authority integration.
var (
	// ErrAuthorityUnavailable is returned when the ID authority cannot be
	// reached after the configured retry budget.
	ErrAuthorityUnavailable = errors.New("ID authority unavailable")

	// ErrAuthorityBadResponse is returned when the authority answers with an
	// unexpected status or body shape.
	ErrAuthorityBadResponse = errors.New("ID authority returned unexpected response")

	// ErrNonCanonicalID is returned when the authority issues an ID that is
	// not a canonical UUID string. This is a fatal integration error, not a
	// recoverable validation error.
	ErrNonCanonicalID = errors.New("ID authority issued a non-canonical UUID")
)

// Authority abstracts the external ID service that derives business-key
// identifiers. All issued IDs are canonical UUID strings; anything else is
// treated as corruption of the integration (ErrNonCanonicalID).
type Authority interface {
	// CreateDonorID derives the durable donor ID for (submitterID, studyID).
	CreateDonorID(ctx context.Context, submitterID, studyID string) (string, error)

	// CreateSpecimenID derives the durable specimen ID for (submitterID, studyID).
	CreateSpecimenID(ctx context.Context, submitterID, studyID string) (string, error)

	// CreateSampleID derives the durable sample ID for (submitterID, studyID).
	CreateSampleID(ctx context.Context, submitterID, studyID string) (string, error)

	// ObjectID derives the durable file object ID for (analysisID, fileName).
	// The same logical file always resolves to the same object ID.
	ObjectID(ctx context.Context, analysisID, fileName string) (string, error)
}

const (
	defaultAuthorityTimeout  = 10 * time.Second
	defaultAuthorityRetries  = 3
	defaultAuthorityBackoff  = 250 * time.Millisecond
	maxAuthorityResponseSize = 1024
)

// HTTPAuthority talks to a remote ID authority over HTTP with bounded
// retries. Transient transport failures and 5xx responses are retried;
// definitive 4xx responses are not.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
	retries int
	backoff time.Duration
}

// NewHTTPAuthority creates an authority client for the given base URL.
func NewHTTPAuthority(baseURL string) *HTTPAuthority {
	return &HTTPAuthority{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultAuthorityTimeout},
		retries: defaultAuthorityRetries,
		backoff: defaultAuthorityBackoff,
	}
}

// CreateDonorID implements Authority.
func (a *HTTPAuthority) CreateDonorID(ctx context.Context, submitterID, studyID string) (string, error) {
	return a.fetchID(ctx, "/donor/id", url.Values{
		"submitterId": {submitterID},
		"studyId":     {studyID},
	})
}

// CreateSpecimenID implements Authority.
func (a *HTTPAuthority) CreateSpecimenID(ctx context.Context, submitterID, studyID string) (string, error) {
	return a.fetchID(ctx, "/specimen/id", url.Values{
		"submitterId": {submitterID},
		"studyId":     {studyID},
	})
}

// CreateSampleID implements Authority.
func (a *HTTPAuthority) CreateSampleID(ctx context.Context, submitterID, studyID string) (string, error) {
	return a.fetchID(ctx, "/sample/id", url.Values{
		"submitterId": {submitterID},
		"studyId":     {studyID},
	})
}

// ObjectID implements Authority.
func (a *HTTPAuthority) ObjectID(ctx context.Context, analysisID, fileName string) (string, error) {
	return a.fetchID(ctx, "/object/id", url.Values{
		"analysisId": {analysisID},
		"fileName":   {fileName},
	})
}

// fetchID performs one GET with bounded retries and canonical-UUID checking.
func (a *HTTPAuthority) fetchID(ctx context.Context, path string, query url.Values) (string, error) {
	endpoint := a.baseURL + path + "?" + query.Encode()

	var lastErr error

	for attempt := 0; attempt < a.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %s", ErrAuthorityUnavailable, ctx.Err().Error())
			case <-time.After(a.backoff * time.Duration(attempt)):
			}
		}

		id, retriable, err := a.fetchOnce(ctx, endpoint)
		if err == nil {
			return id, nil
		}

		if !retriable {
			return "", err
		}

		lastErr = err
	}

	return "", fmt.Errorf("%w: %s after %d attempts: %s",
		ErrAuthorityUnavailable, endpoint, a.retries, lastErr.Error())
}

// fetchOnce performs a single request. The second return value reports
// whether the failure is worth retrying.
func (a *HTTPAuthority) fetchOnce(ctx context.Context, endpoint string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s", ErrAuthorityBadResponse, err.Error())
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("%w: %s", ErrAuthorityUnavailable, err.Error())
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthorityResponseSize))
	if err != nil {
		return "", true, fmt.Errorf("%w: reading body: %s", ErrAuthorityUnavailable, err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return canonicalize(strings.TrimSpace(string(body)))
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", true, fmt.Errorf("%w: status %d", ErrAuthorityBadResponse, resp.StatusCode)
	default:
		return "", false, fmt.Errorf("%w: status %d", ErrAuthorityBadResponse, resp.StatusCode)
	}
}

// canonicalize validates the authority's answer is a canonical UUID string.
func canonicalize(raw string) (string, bool, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil || parsed.String() != strings.ToLower(raw) {
		return "", false, fmt.Errorf("%w: got %q", ErrNonCanonicalID, raw)
	}

	return parsed.String(), false, nil
}

// LocalAuthority derives business-key IDs deterministically with UUIDv5 over
// a fixed namespace. It is used in standalone deployments and tests, where no
// external authority is configured; the derivation is stable across
// processes, so repeated submissions of the same business key resolve to the
// same ID exactly as with the remote service.
type LocalAuthority struct {
	namespace uuid.UUID
}

// NewLocalAuthority creates a deterministic local authority.
func NewLocalAuthority() *LocalAuthority {
	// Fixed namespace so derived IDs are stable across deployments.
	return &LocalAuthority{
		namespace: uuid.NewSHA1(uuid.NameSpaceURL, []byte("metacord://identifier")),
	}
}

// CreateDonorID implements Authority.
func (a *LocalAuthority) CreateDonorID(_ context.Context, submitterID, studyID string) (string, error) {
	return a.derive("donor", studyID, submitterID), nil
}

// CreateSpecimenID implements Authority.
func (a *LocalAuthority) CreateSpecimenID(_ context.Context, submitterID, studyID string) (string, error) {
	return a.derive("specimen", studyID, submitterID), nil
}

// CreateSampleID implements Authority.
func (a *LocalAuthority) CreateSampleID(_ context.Context, submitterID, studyID string) (string, error) {
	return a.derive("sample", studyID, submitterID), nil
}

// ObjectID implements Authority.
func (a *LocalAuthority) ObjectID(_ context.Context, analysisID, fileName string) (string, error) {
	return a.derive("object", analysisID, fileName), nil
}

func (a *LocalAuthority) derive(kind, scope, key string) string {
	return uuid.NewSHA1(a.namespace, []byte(kind+":"+scope+":"+key)).String()
}
