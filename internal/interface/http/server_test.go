package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/config"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/persistence/projections"
	"github.com/lyo-hub/lyo-session-engine/internal/interface/http/handlers"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
)

type fakeInspector struct{ active int }

func (f *fakeInspector) ActiveSessions() int { return f.active }

func testServer(t *testing.T, cfg Config, deps Dependencies) *Server {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
	}
	return NewServer(cfg, deps)
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	return cfg
}

func doRequest(s *Server, method, target string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleHealth_Default(t *testing.T) {
	s := testServer(t, quietConfig(), Dependencies{})

	rec := doRequest(s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestHandleHealth_FailingChecker(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("v1")
	checker.AddCheck("database", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	s := testServer(t, quietConfig(), Dependencies{HealthChecker: checker})

	assert.Equal(t, http.StatusServiceUnavailable, doRequest(s, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(s, http.MethodGet, "/ready").Code)
	// Liveness stays up even when dependencies are down.
	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/live").Code)
}

func TestHandleGetLearnerCard(t *testing.T) {
	view := projections.NewLearnerProgressView()
	require.NoError(t, view.Apply(shared.NewSessionStartedEvent("s1", "u1", "course-go")))

	s := testServer(t, quietConfig(), Dependencies{ProgressView: view})

	rec := doRequest(s, http.MethodGet, "/api/v1/learners/u1/card")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	card, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "u1", card["user_id"])

	assert.Equal(t, http.StatusNotFound, doRequest(s, http.MethodGet, "/api/v1/learners/ghost/card").Code)
}

func TestHandleGetUnsyncedLearners(t *testing.T) {
	view := projections.NewLearnerProgressView()
	require.NoError(t, view.Apply(shared.NewSessionEndedEvent(
		"s1", "u1", "shutdown", time.Minute, 2, 0.5, true)))

	s := testServer(t, quietConfig(), Dependencies{ProgressView: view})

	rec := doRequest(s, http.MethodGet, "/api/v1/learners/unsynced")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, data["count"])
}

func TestHandleGetStats(t *testing.T) {
	s := testServer(t, quietConfig(), Dependencies{
		Engine:       &fakeInspector{active: 3},
		ProgressView: projections.NewLearnerProgressView(),
	})

	rec := doRequest(s, http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	stats, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, stats["active_sessions"])
	assert.EqualValues(t, 0, stats["tracked_learners"])
}

func TestHandleGetFeatures(t *testing.T) {
	s := testServer(t, quietConfig(), Dependencies{Features: config.LoadFeatureFlags()})

	rec := doRequest(s, http.MethodGet, "/api/v1/features")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	features, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, features, 5)
}

func TestNilDependenciesDegradeTo501(t *testing.T) {
	s := testServer(t, quietConfig(), Dependencies{})

	assert.Equal(t, http.StatusNotImplemented, doRequest(s, http.MethodGet, "/api/v1/sessions/s1").Code)
	assert.Equal(t, http.StatusNotImplemented, doRequest(s, http.MethodGet, "/api/v1/learners/u1/progress").Code)
	assert.Equal(t, http.StatusNotImplemented, doRequest(s, http.MethodGet, "/api/v1/features").Code)
}

func TestAdminEndpointsRequireAPIKey(t *testing.T) {
	cfg := quietConfig()
	cfg.APIKeys = []string{"ops-key"}

	s := testServer(t, cfg, Dependencies{})

	rec := doRequest(s, http.MethodGet, "/admin/v1/jobs")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated but the scheduler is not wired, so the endpoint degrades.
	rec = doRequest(s, http.MethodGet, "/admin/v1/jobs", func(r *http.Request) {
		r.Header.Set("X-API-Key", "ops-key")
	})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := quietConfig()
	cfg.RateLimitPerMinute = 2

	s := testServer(t, cfg, Dependencies{})

	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/live").Code)
	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/live").Code)

	rec := doRequest(s, http.MethodGet, "/live")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRecoveryMiddleware_Panic(t *testing.T) {
	s := testServer(t, quietConfig(), Dependencies{})
	s.router.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})

	rec := doRequest(s, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "internal_server_error", resp.Error.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	s := testServer(t, quietConfig(), Dependencies{})

	rec := doRequest(s, http.MethodGet, "/live", func(r *http.Request) {
		r.Header.Set("X-Request-ID", "req-42")
	})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
