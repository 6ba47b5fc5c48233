// ABOUTME: Tests for the server orchestrator: wiring, base URL resolution and lifecycle
// ABOUTME: Runs a real listener on a free port against a temporary SQLite database

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorale/internal/config"
)

// testConfig creates a minimal config on a free port with data under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	dir := t.TempDir()
	cfg, err := config.Parse("chorale.yaml", []byte(`
server:
  http_addr: "`+addr+`"
database:
  path: "`+filepath.Join(dir, "chorale.db")+`"
auth:
  jwt_secret: "server-test-secret-at-least-32-bytes"
`))
	require.NoError(t, err)
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	assert.Equal(t, "http://"+cfg.Server.HTTPAddr, srv.baseURL)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var providers []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &providers))
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p["id"])
	}
	assert.Equal(t, []string{"credentials", "passkey"}, ids, "no OAuth configured turns on credentials")
}

func TestNew_OAuthDisablesCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.OAuth.Kakao = config.ProviderConfig{ClientID: "id", ClientSecret: "secret"}

	srv, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/kakao/login", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://kauth.kakao.com/oauth/authorize")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/credentials", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_BadStore(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.Database.Path = filepath.Join(blocker, "chorale.db")

	_, err := New(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}

func TestRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + cfg.Server.HTTPAddr + "/api/health")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Error("server did not shut down in time")
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "explicit",
			cfg:  config.Config{Site: config.SiteConfig{BaseURL: "https://choir.example.com/"}},
			want: "https://choir.example.com",
		},
		{
			name: "listen address",
			cfg:  config.Config{Server: config.ServerConfig{HTTPAddr: "127.0.0.1:3000"}},
			want: "http://127.0.0.1:3000",
		},
		{
			name: "port only",
			cfg:  config.Config{Server: config.ServerConfig{HTTPAddr: ":8080"}},
			want: "http://localhost:8080",
		},
		{
			name: "tailscale plain",
			cfg:  config.Config{Tailscale: config.TailscaleConfig{Enabled: true, Hostname: "choir"}},
			want: "http://choir",
		},
		{
			name: "tailscale funnel",
			cfg:  config.Config{Tailscale: config.TailscaleConfig{Enabled: true, Hostname: "choir", Funnel: true}},
			want: "https://choir",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseURL(&tt.cfg, testLogger()))
		})
	}
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	_, err = resolveTailscaleAuthKey("")
	assert.Error(t, err)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/chorale/ts")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chorale/ts", dir)

	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("chorale", "tailscale"), filepath.Join(filepath.Base(filepath.Dir(dir)), filepath.Base(dir)))
}
