package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/engine"
	"github.com/ethpandaops/reportoor/pkg/metrics"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const runEvents = `[
	{"type":"run_begin","time":"2026-03-01T12:00:00Z","run":{"runner_version":"1.50.0","workers":2}},
	{"type":"attempt_begin","suite":"cart","title":"adds item"},
	{"type":"attempt_end","suite":"cart","title":"adds item","id":"t1","status":"passed","duration_ms":1200},
	{"type":"attempt_end","suite":"cart","title":"removes item","id":"t2","status":"failed","duration_ms":800,
	 "errors":[{"message":"expect(received).toBe(expected)"}]},
	{"type":"run_end","time":"2026-03-01T12:01:00Z"}
]`

type testEnv struct {
	srv    *server
	engine *engine.Engine
	http   *httptest.Server
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newTestEnv(t *testing.T, cfg *config.ServerConfig, m *metrics.Metrics) *testEnv {
	t.Helper()

	log := testLogger()
	eng := engine.New(log, engine.Config{OutputDir: t.TempDir()}, nil, nil)

	srv, ok := NewServer(log, cfg, eng, m).(*server)
	require.True(t, ok)

	ts := httptest.NewServer(srv.buildRouter())

	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, srv.Stop())
	})

	return &testEnv{srv: srv, engine: eng, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.http.URL+path, rd)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &config.ServerConfig{}, nil)

	resp, body := env.do(t, http.MethodGet, "/api/v1/health", "", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestPostEvents_Batch(t *testing.T) {
	m := metrics.New(false)
	env := newTestEnv(t, &config.ServerConfig{}, m)

	resp, body := env.do(t, http.MethodPost, "/api/v1/events", runEvents, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got eventsResponse
	require.NoError(t, json.Unmarshal(body, &got))

	assert.Equal(t, 5, got.Accepted)
	assert.Zero(t, got.Rejected)
	assert.True(t, got.RunEnded)

	select {
	case <-env.srv.RunEnded():
	default:
		t.Fatal("run end not signalled")
	}

	assert.Equal(t, engine.PhaseAggregating, env.engine.Phase())
	assert.Equal(t, 2, env.engine.Tests())

	_, metricsBody := env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, string(metricsBody), `reportoor_events_total{result="success",type="attempt_end"} 2`)
}

func TestPostEvents_SingleObjects(t *testing.T) {
	env := newTestEnv(t, &config.ServerConfig{}, nil)

	for _, ev := range []string{
		`{"type":"run_begin"}`,
		`{"type":"attempt_end","title":"a","status":"passed"}`,
	} {
		resp, body := env.do(t, http.MethodPost, "/api/v1/events", ev, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	assert.Equal(t, engine.PhaseCollecting, env.engine.Phase())

	select {
	case <-env.srv.RunEnded():
		t.Fatal("run end signalled early")
	default:
	}
}

func TestPostEvents_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{
			name:       "empty body",
			body:       "",
			wantStatus: http.StatusBadRequest,
			wantErr:    "empty body",
		},
		{
			name:       "malformed json",
			body:       `{"type":`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "decoding event",
		},
		{
			name:       "empty batch",
			body:       `[]`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "no events",
		},
		{
			name:       "null in batch",
			body:       `[{"type":"run_begin"},null]`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "event 1 is null",
		},
		{
			name:       "attempt before run begin",
			body:       `{"type":"attempt_end","title":"a","status":"passed"}`,
			wantStatus: http.StatusConflict,
			wantErr:    "event 0",
		},
		{
			name:       "unknown type",
			body:       `{"type":"teardown"}`,
			wantStatus: http.StatusConflict,
			wantErr:    "unknown event type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &config.ServerConfig{}, nil)

			resp, body := env.do(t, http.MethodPost, "/api/v1/events", tt.body, "")

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, string(body), tt.wantErr)
		})
	}
}

func TestPostEvents_PartialBatch(t *testing.T) {
	env := newTestEnv(t, &config.ServerConfig{}, nil)

	resp, body := env.do(t, http.MethodPost, "/api/v1/events",
		`[{"type":"run_begin"},{"type":"attempt_end","status":"passed"}]`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got eventsResponse
	require.NoError(t, json.Unmarshal(body, &got))

	assert.Equal(t, 1, got.Accepted)
	assert.Equal(t, 1, got.Rejected)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0], "event 1")
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	env := newTestEnv(t, &config.ServerConfig{AuthTokenHash: string(hash)}, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		token      string
		wantStatus int
	}{
		{
			name:       "health is public",
			method:     http.MethodGet,
			path:       "/api/v1/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			method:     http.MethodGet,
			path:       "/api/v1/status",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token",
			method:     http.MethodPost,
			path:       "/api/v1/events",
			body:       `{"type":"run_begin"}`,
			token:      "guess",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid token",
			method:     http.MethodPost,
			path:       "/api/v1/events",
			body:       `{"type":"run_begin"}`,
			token:      "s3cret",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &config.ServerConfig{RequestsPerMinute: 1}, nil)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/events", `{"type":"run_begin"}`, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/events", `{"type":"run_end"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), "rate limit exceeded")

	// Status is not rate limited.
	resp, _ = env.do(t, http.MethodGet, "/api/v1/status", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, &config.ServerConfig{}, nil)

	_, body := env.do(t, http.MethodGet, "/api/v1/status", "", "")
	assert.JSONEq(t, `{"phase":"idle","tests":0}`, string(body))

	resp, _ := env.do(t, http.MethodPost, "/api/v1/events", runEvents, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := env.engine.Finish(context.Background())
	require.NoError(t, err)

	_, body = env.do(t, http.MethodGet, "/api/v1/status", "", "")

	var got statusResponse
	require.NoError(t, json.Unmarshal(body, &got))

	assert.Equal(t, engine.PhaseFinalized, got.Phase)
	assert.Equal(t, 2, got.Tests)
	require.NotNil(t, got.Result)
	assert.False(t, got.Result.Success)
	assert.Equal(t, 1, got.Result.ExitCode)
	assert.Equal(t, []string{"t2"}, got.Result.Failed)
	require.NotNil(t, got.Result.Metrics)
	assert.Equal(t, 1, got.Result.Metrics.FailedCount)
}

func TestStartStop(t *testing.T) {
	srv := NewServer(testLogger(), &config.ServerConfig{Listen: "127.0.0.1:0"},
		engine.New(testLogger(), engine.Config{OutputDir: t.TempDir()}, nil, nil), nil)

	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{
			name:   "remote addr",
			remote: "10.0.0.1:5555",
			want:   "10.0.0.1",
		},
		{
			name:   "forwarded chain",
			xff:    "203.0.113.9, 10.0.0.2",
			remote: "10.0.0.1:5555",
			want:   "203.0.113.9",
		},
		{
			name:   "remote without port",
			remote: "unix",
			want:   "unix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote

			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.want, extractIP(r))
		})
	}
}

func TestClientLimitersEvict(t *testing.T) {
	l := newClientLimiters(60)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.allow("a", now))
	assert.True(t, l.allow("b", now.Add(time.Hour)))

	l.evict(now.Add(time.Minute))

	assert.Len(t, l.limiters, 1)
	assert.Contains(t, l.limiters, "b")
}
