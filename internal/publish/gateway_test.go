package publish

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestGateway points an HTTPGateway at a test server with a short retry
// backoff so retry tests stay fast.
func newTestGateway(serverURL string) *HTTPGateway {
	return NewHTTPGateway(&GatewayConfig{
		BaseURL: serverURL,
		Timeout: time.Second,
		Retries: 3,
		Backoff: time.Millisecond,
	})
}

func TestHTTPGateway_DownloadSpec(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/objects/obj-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"objectId":"obj-1","objectSize":2048,"objectMd5":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}`))
	}))
	defer server.Close()

	g := newTestGateway(server.URL)

	spec, err := g.DownloadSpec(context.Background(), "obj-1")

	require.NoError(t, err)
	assert.Equal(t, "obj-1", spec.ObjectID)
	assert.Equal(t, int64(2048), spec.FileSize)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", spec.FileMD5)
}

func TestHTTPGateway_DownloadSpec_NotFoundIsDefinitive(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	g := newTestGateway(server.URL)

	_, err := g.DownloadSpec(context.Background(), "obj-gone")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, 1, attempts, "definitive miss must not be retried")
}

func TestHTTPGateway_DownloadSpec_RetriesServerErrors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`{"objectId":"obj-1","objectSize":1,"objectMd5":""}`))
	}))
	defer server.Close()

	g := newTestGateway(server.URL)

	spec, err := g.DownloadSpec(context.Background(), "obj-1")

	require.NoError(t, err)
	assert.Equal(t, "obj-1", spec.ObjectID)
	assert.Equal(t, 3, attempts)
}

func TestHTTPGateway_DownloadSpec_ExhaustsRetryBudget(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g := newTestGateway(server.URL)

	_, err := g.DownloadSpec(context.Background(), "obj-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageService)
	assert.Equal(t, 3, attempts)
}

func TestHTTPGateway_DownloadSpec_MalformedBody(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	g := newTestGateway(server.URL)

	_, err := g.DownloadSpec(context.Background(), "obj-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageService)
}

func TestHTTPGateway_Exists(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/objects/obj-present" {
			_, _ = w.Write([]byte(`{"objectId":"obj-present","objectSize":1,"objectMd5":""}`))

			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	g := newTestGateway(server.URL)
	ctx := context.Background()

	present, err := g.Exists(ctx, "obj-present")
	require.NoError(t, err)
	assert.True(t, present)

	absent, err := g.Exists(ctx, "obj-absent")
	require.NoError(t, err)
	assert.False(t, absent)
}

func TestHTTPGateway_Exists_TransportErrorIsNotAMiss(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g := newTestGateway(server.URL)

	_, err := g.Exists(context.Background(), "obj-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageService)
}

func TestLoadGatewayConfig_Defaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := LoadGatewayConfig()

	assert.Equal(t, "http://localhost:9200", cfg.BaseURL)
	assert.Equal(t, defaultGatewayTimeout, cfg.Timeout)
	assert.Equal(t, defaultGatewayRetries, cfg.Retries)
	assert.Equal(t, defaultGatewayBackoff, cfg.Backoff)
}

func TestLoadGatewayConfig_FromEnvironment(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("STORAGE_GATEWAY_URL", "http://storage:9300")
	t.Setenv("STORAGE_GATEWAY_TIMEOUT", "5s")
	t.Setenv("STORAGE_GATEWAY_RETRIES", "5")

	cfg := LoadGatewayConfig()

	assert.Equal(t, "http://storage:9300", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.Retries)
}
