package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/config"
)

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Parallelism = 1
	cfg.Audit.Sink = "json"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) (*app, *bytes.Buffer, http.Handler) {
	t.Helper()
	var auditOut bytes.Buffer
	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &auditOut)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	h, err := a.routes()
	require.NoError(t, err)
	return a, &auditOut, h
}

func do(h http.Handler, method, path, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeLoginAndGuardedRoute(t *testing.T) {
	a, _, h := newTestApp(t, testConfig())
	require.NoError(t, a.seed(context.Background(), "alice:alice@example.com:correct horse"))

	rec := do(h, http.MethodPost, "/session", `{"username":"ALICE@example.com","password":"correct horse"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res goSession.SessionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "alice", res.User.Username)
	require.NotEmpty(t, res.Token)

	rec = do(h, http.MethodGet, "/session", "", "Bearer "+res.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/me", "", "Bearer "+res.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me goSession.UserRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, res.User.ID, me.ID)
	assert.Equal(t, "false", rec.Header().Get("X-Session-Readonly"))

	rec = do(h, http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeRejectsBadCredentials(t *testing.T) {
	a, _, h := newTestApp(t, testConfig())
	require.NoError(t, a.seed(context.Background(), "alice:alice@example.com:correct horse"))

	rec := do(h, http.MethodPost, "/session", `{"username":"alice","password":"wrong password"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Invalid username and/or password")
}

func TestServeMetricsAndAudit(t *testing.T) {
	cfg := testConfig()
	a, auditOut, h := newTestApp(t, cfg)
	require.NoError(t, a.seed(context.Background(), "alice:alice@example.com:correct horse"))

	rec := do(h, http.MethodPost, "/session", `{"username":"alice","password":"correct horse"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(h, http.MethodGet, cfg.Metrics.Path, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gosession_initiate_success_total 1")

	// Close drains the audit dispatcher.
	a.Close()
	assert.Contains(t, auditOut.String(), `"session_initiated"`)
}

func TestServeMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	_, _, h := newTestApp(t, cfg)

	rec := do(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHealthz(t *testing.T) {
	_, _, h := newTestApp(t, testConfig())

	rec := do(h, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSeedRejectsMalformedSpec(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())
	err := a.seed(context.Background(), "alice-without-password")
	assertErrorCode(t, err, "SEED_INVALID")
}

func TestNewAppRejectsShortSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Secret = "short"
	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)
	require.Error(t, err)
	assertErrorCode(t, err, "CONFIG_INVALID")
}

func TestServeThrottlesFailedLogins(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Store.RedisAddr = mr.Addr()
	cfg.Throttle.Enabled = true
	cfg.Throttle.MaxAttempts = 2
	a, _, h := newTestApp(t, cfg)
	require.NoError(t, a.seed(context.Background(), "alice:alice@example.com:correct horse"))

	for i := 0; i < 2; i++ {
		rec := do(h, http.MethodPost, "/session", `{"username":"alice","password":"wrong password"}`, "")
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}

	rec := do(h, http.MethodPost, "/session", `{"username":"alice","password":"correct horse"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())

	mr.FastForward(cfg.Throttle.Window)
	rec = do(h, http.MethodPost, "/session", `{"username":"alice","password":"correct horse"}`, "")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
