// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "chorale.yaml", `
server:
  http_addr: "0.0.0.0:3000"

database:
  path: "/tmp/chorale/chorale.db"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  session_ttl: "48h"
  refresh_after: "1m"

oauth:
  google:
    client_id: "gid"
    client_secret: "gsecret"

uploads:
  transcode_timeout: "30s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/chorale/chorale.db", cfg.Database.Path)
	assert.Equal(t, 48*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, time.Minute, cfg.Auth.RefreshAfter)
	assert.Equal(t, 30*time.Second, cfg.Uploads.TranscodeTimeout)
	assert.True(t, cfg.OAuth.Google.Enabled())
	assert.False(t, cfg.OAuth.Naver.Enabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "chorale.yaml", `
server:
  http_addr: "localhost:3000"
database:
  path: "/data/chorale.db"
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultSessionTTL, cfg.Auth.SessionTTL)
	assert.Equal(t, DefaultRefreshAfter, cfg.Auth.RefreshAfter)
	assert.Equal(t, DefaultDevPassword, cfg.Auth.DevPassword)
	assert.Equal(t, UploadBackendLocal, cfg.Uploads.Backend)
	assert.Equal(t, filepath.Join("/data", "uploads"), cfg.Uploads.Dir)
	assert.Equal(t, int64(DefaultMaxRequestBytes), cfg.Uploads.MaxRequestBytes)
	assert.Equal(t, DefaultTranscodeTimeout, cfg.Uploads.TranscodeTimeout)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "chorale.toml", `
[server]
http_addr = "127.0.0.1:4000"

[database]
path = "/tmp/c.db"

[auth]
jwt_secret = "toml-secret"
dev_login = true

[uploads]
backend = "s3"

[uploads.s3]
bucket = "scores"
public_base_url = "https://cdn.example.org/scores"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4000", cfg.Server.HTTPAddr)
	assert.Equal(t, UploadBackendS3, cfg.Uploads.Backend)
	assert.Equal(t, "scores", cfg.Uploads.S3.Bucket)
	assert.True(t, cfg.DevLoginEnabled())
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_CHORALE_SECRET", "from-env")
	path := writeConfig(t, "chorale.yaml", `
server:
  http_addr: "localhost:3000"
database:
  path: "/tmp/c.db"
auth:
  jwt_secret: "${TEST_CHORALE_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_AuthSecretFallback(t *testing.T) {
	t.Setenv("AUTH_SECRET", "fallback-secret")
	path := writeConfig(t, "chorale.yaml", `
server:
  http_addr: "localhost:3000"
database:
  path: "/tmp/c.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fallback-secret", cfg.Auth.JWTSecret)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http addr",
			content: "database:\n  path: /tmp/c.db\nauth:\n  jwt_secret: s\n",
			wantErr: "server.http_addr is required",
		},
		{
			name:    "missing database path",
			content: "server:\n  http_addr: localhost:1\nauth:\n  jwt_secret: s\n",
			wantErr: "database.path is required",
		},
		{
			name:    "missing jwt secret",
			content: "server:\n  http_addr: localhost:1\ndatabase:\n  path: /tmp/c.db\n",
			wantErr: "auth.jwt_secret is required",
		},
		{
			name:    "tailscale without hostname",
			content: "tailscale:\n  enabled: true\ndatabase:\n  path: /tmp/c.db\nauth:\n  jwt_secret: s\n",
			wantErr: "tailscale.hostname is required",
		},
		{
			name:    "unknown upload backend",
			content: "server:\n  http_addr: localhost:1\ndatabase:\n  path: /tmp/c.db\nauth:\n  jwt_secret: s\nuploads:\n  backend: ftp\n",
			wantErr: "uploads.backend must be",
		},
		{
			name:    "s3 without public url",
			content: "server:\n  http_addr: localhost:1\ndatabase:\n  path: /tmp/c.db\nauth:\n  jwt_secret: s\nuploads:\n  backend: s3\n  s3:\n    bucket: b\n",
			wantErr: "public_base_url",
		},
		{
			name:    "bad duration",
			content: "server:\n  http_addr: localhost:1\ndatabase:\n  path: /tmp/c.db\nauth:\n  jwt_secret: s\n  session_ttl: forever\n",
			wantErr: "auth.session_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "chorale.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should contain %q", err, tt.wantErr)
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestDevLoginEnabled(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.DevLoginEnabled(), "no oauth configured enables dev login")

	cfg.OAuth.Kakao = ProviderConfig{ClientID: "id", ClientSecret: "secret"}
	assert.False(t, cfg.DevLoginEnabled(), "oauth configured disables dev login")

	on := true
	cfg.Auth.DevLogin = &on
	assert.True(t, cfg.DevLoginEnabled(), "explicit setting wins")
}

func TestResolvePath(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("CHORALE_CONFIG", "/etc/chorale/custom.toml")
	assert.Equal(t, "/etc/chorale/custom.toml", ResolvePath())

	t.Setenv("CHORALE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "chorale", "config.yaml"), ResolvePath())

	require.NoError(t, os.WriteFile("chorale.yaml", []byte("{}"), 0644))
	assert.Equal(t, "chorale.yaml", ResolvePath(), "a file in the working directory wins over XDG")
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, filepath.Join("/data", "chorale"), DataDir())
}
