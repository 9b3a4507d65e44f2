package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	key, err := tokenizer.GenerateKey(tokenizer.AlgorithmES256)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Secrets.KeyPair = key
	cfg.Auth.Algorithm = tokenizer.AlgorithmES256
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.NonceMaxAge = time.Minute
	cfg.App.ShutdownTimeout = time.Second
	cfg.Events.Enabled = true
	cfg.Events.Backend = "gochannel"
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestNewApp_Memory(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	a, err := newApp(context.Background(), testConfig(t), logger)
	require.NoError(t, err)
	t.Cleanup(a.close)

	for _, path := range []string{"/healthcheck", "/metrics", "/.well-known/jwks.json"} {
		rec := httptest.NewRecorder()
		a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	assert.Contains(t, rec.Body.String(), `"crv":"P-256"`)
}

func TestNewApp_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "walletauth.db")

	a, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(a.close)

	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApp_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Database.Driver = "redis"
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Events.Backend = "redisstream"

	a, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(a.close)

	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/0x4675c7e5baafbffbca748158becba61ef3b0a263/nonce", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, mr.Exists("walletauth:{0x4675c7e5baafbffbca748158becba61ef3b0a263}:nonce"))
}

func TestNewApp_BadKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secrets.KeyPair = "not a key"

	_, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing key")
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("component", "auth").WithGroup("req").Info("nonce issued", "address", "0xabc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "nonce issued")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "req.address=")
	assert.Contains(t, out, "0xabc")
}
