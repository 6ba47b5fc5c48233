// ABOUTME: Configuration loading and parsing for chorale
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Upload backends
const (
	UploadBackendLocal = "local"
	UploadBackendS3    = "s3"
)

// Default values applied by Load when a field is left empty.
const (
	DefaultSessionTTL       = 30 * 24 * time.Hour
	DefaultRefreshAfter     = 5 * time.Minute
	DefaultTranscodeTimeout = 10 * time.Minute
	DefaultDevPassword      = "test"
	DefaultMaxRequestBytes  = 2<<30 + 10<<20
)

// Config represents the complete chorale configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	OAuth     OAuthConfig     `yaml:"oauth" toml:"oauth"`
	Site      SiteConfig      `yaml:"site" toml:"site"`
	Uploads   UploadsConfig   `yaml:"uploads" toml:"uploads"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel, implies HTTPS
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds session and local login configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`

	// DevLogin enables the email + shared password login. When nil it is
	// enabled only if no OAuth provider is configured.
	DevLogin    *bool  `yaml:"dev_login" toml:"dev_login"`
	DevPassword string `yaml:"dev_password" toml:"dev_password"`

	SessionTTL   time.Duration `yaml:"-" toml:"-"`
	RefreshAfter time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	SessionTTLRaw   string `yaml:"session_ttl" toml:"session_ttl"`
	RefreshAfterRaw string `yaml:"refresh_after" toml:"refresh_after"`
}

// OAuthConfig holds per-provider OAuth client credentials
type OAuthConfig struct {
	Google ProviderConfig `yaml:"google" toml:"google"`
	Naver  ProviderConfig `yaml:"naver" toml:"naver"`
	Kakao  ProviderConfig `yaml:"kakao" toml:"kakao"`
}

// ProviderConfig holds a single OAuth client registration
type ProviderConfig struct {
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
}

// Enabled reports whether both client id and secret are set.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// SiteConfig holds public site settings
type SiteConfig struct {
	// BaseURL is the external URL of the site (OAuth redirects, passkey origin, cookie Secure flag).
	// If not set, it's derived from server.http_addr or the tailscale hostname.
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Name    string `yaml:"name" toml:"name"`
}

// UploadsConfig holds upload storage and transcoding configuration
type UploadsConfig struct {
	Backend         string   `yaml:"backend" toml:"backend"`
	Dir             string   `yaml:"dir" toml:"dir"`
	MaxRequestBytes int64    `yaml:"max_request_bytes" toml:"max_request_bytes"`
	FFmpegPath      string   `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	S3              S3Config `yaml:"s3" toml:"s3"`

	TranscodeTimeout    time.Duration `yaml:"-" toml:"-"`
	TranscodeTimeoutRaw string        `yaml:"transcode_timeout" toml:"transcode_timeout"`
}

// S3Config holds S3-compatible object storage settings
type S3Config struct {
	Endpoint      string `yaml:"endpoint" toml:"endpoint"`
	Region        string `yaml:"region" toml:"region"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	AccessKey     string `yaml:"access_key" toml:"access_key"`
	SecretKey     string `yaml:"secret_key" toml:"secret_key"`
	PublicBaseURL string `yaml:"public_base_url" toml:"public_base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// ResolvePath returns the configuration file to use: CHORALE_CONFIG, then
// ./chorale.yaml when it exists, then $XDG_CONFIG_HOME/chorale/config.yaml
// (~/.config when XDG_CONFIG_HOME is unset). The last path is returned even
// if it does not exist yet.
func ResolvePath() string {
	if envPath := os.Getenv("CHORALE_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("chorale.yaml"); err == nil {
		return "chorale.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chorale.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "chorale", "config.yaml")
}

// DataDir returns the default directory for the database and local uploads:
// $XDG_DATA_HOME/chorale, or ~/.local/share/chorale.
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "chorale")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded before parsing.
// Files with a .toml extension are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(path, []byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes already expanded configuration content. The path is only
// used to choose the format.
func Parse(path string, data []byte) (*Config, error) {
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHORALE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CHORALE_BASE_URL"); v != "" {
		c.Site.BaseURL = v
	}
	if c.Uploads.FFmpegPath == "" {
		c.Uploads.FFmpegPath = os.Getenv("FFMPEG_PATH")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("AUTH_SECRET")
	}
}

func (c *Config) applyDefaults() {
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = DefaultSessionTTL
	}
	if c.Auth.RefreshAfter == 0 {
		c.Auth.RefreshAfter = DefaultRefreshAfter
	}
	if c.Auth.DevPassword == "" {
		c.Auth.DevPassword = DefaultDevPassword
	}
	if c.Uploads.Backend == "" {
		c.Uploads.Backend = UploadBackendLocal
	}
	if c.Uploads.Dir == "" && c.Database.Path != "" {
		c.Uploads.Dir = filepath.Join(filepath.Dir(c.Database.Path), "uploads")
	}
	if c.Uploads.MaxRequestBytes == 0 {
		c.Uploads.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.Uploads.FFmpegPath == "" {
		c.Uploads.FFmpegPath = "ffmpeg"
	}
	if c.Uploads.TranscodeTimeout == 0 {
		c.Uploads.TranscodeTimeout = DefaultTranscodeTimeout
	}
	if c.Site.Name == "" {
		c.Site.Name = "chorale"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	switch c.Uploads.Backend {
	case UploadBackendLocal:
	case UploadBackendS3:
		if c.Uploads.S3.Bucket == "" {
			return fmt.Errorf("uploads.s3.bucket is required for the s3 backend")
		}
		if !strings.HasPrefix(c.Uploads.S3.PublicBaseURL, "http://") && !strings.HasPrefix(c.Uploads.S3.PublicBaseURL, "https://") {
			return fmt.Errorf("uploads.s3.public_base_url must be an http(s) URL")
		}
	default:
		return fmt.Errorf("uploads.backend must be %q or %q, got %q", UploadBackendLocal, UploadBackendS3, c.Uploads.Backend)
	}

	return nil
}

// HasOAuth reports whether at least one OAuth provider is configured.
func (c *Config) HasOAuth() bool {
	return c.OAuth.Google.Enabled() || c.OAuth.Naver.Enabled() || c.OAuth.Kakao.Enabled()
}

// DevLoginEnabled reports whether the email + shared password login is on.
func (c *Config) DevLoginEnabled() bool {
	if c.Auth.DevLogin != nil {
		return *c.Auth.DevLogin
	}
	return !c.HasOAuth()
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.session_ttl", cfg.Auth.SessionTTLRaw, &cfg.Auth.SessionTTL},
		{"auth.refresh_after", cfg.Auth.RefreshAfterRaw, &cfg.Auth.RefreshAfter},
		{"uploads.transcode_timeout", cfg.Uploads.TranscodeTimeoutRaw, &cfg.Uploads.TranscodeTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
