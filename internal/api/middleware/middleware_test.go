package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCorrelationID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var seen string

	handler := CorrelationID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	t.Run("caller-supplied header is honored", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/api/v1/studies/STUDY-A", nil)
		request.Header.Set("X-Correlation-ID", "pipeline-42")

		handler.ServeHTTP(recorder, request)

		assert.Equal(t, "pipeline-42", seen)
		assert.Equal(t, "pipeline-42", recorder.Header().Get("X-Correlation-ID"))
	})

	t.Run("missing header gets a generated ID", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/api/v1/studies/STUDY-A", nil)

		handler.ServeHTTP(recorder, request)

		assert.Len(t, seen, 16)
		assert.Equal(t, seen, recorder.Header().Get("X-Correlation-ID"))
	})

	t.Run("uncorrelated context reads as unknown", func(t *testing.T) {
		assert.Equal(t, "unknown", GetCorrelationID(context.Background()))
	})
}

func TestCORS(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	policy := CORSPolicy{
		AllowedOrigins: []string{"https://portal.metacord.io"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}

	handler := CORS(policy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed origin is echoed", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)
		request.Header.Set("Origin", "https://portal.metacord.io")

		handler.ServeHTTP(recorder, request)

		assert.Equal(t, "https://portal.metacord.io", recorder.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", recorder.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", recorder.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "600", recorder.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unknown origin gets no allow header", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)
		request.Header.Set("Origin", "https://evil.example")

		handler.ServeHTTP(recorder, request)

		assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits with 204", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodOptions, "/api/v1/studies", nil)

		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusNoContent, recorder.Code)
	})

	t.Run("wildcard origin", func(t *testing.T) {
		open := CORS(CORSPolicy{AllowedOrigins: []string{"*"}})(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {},
		))

		recorder := httptest.NewRecorder()
		open.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRecovery(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := Recovery(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, "application/problem+json", recorder.Header().Get("Content-Type"))

	var problem panicProblem
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusInternalServerError, problem.Status)
	assert.Equal(t, "/api/v1/studies", problem.Instance)
}

func TestRequestLogger(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := RequestLogger(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/studies", nil))

	// The recorder wrapper must pass the handler's response through intact.
	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
}
