// ABOUTME: Server orchestrator that wires config, store, storage and services into the HTTP API
// ABOUTME: Listens on TCP or a tailscale node and shuts everything down in order

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/chorale/internal/admin"
	"github.com/2389/chorale/internal/api"
	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/board"
	"github.com/2389/chorale/internal/config"
	"github.com/2389/chorale/internal/library"
	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/nonce"
	"github.com/2389/chorale/internal/oauth"
	"github.com/2389/chorale/internal/store"
)

// ShutdownTimeout bounds how long in-flight requests may finish on shutdown.
const ShutdownTimeout = 5 * time.Second

// maxOAuthStates caps pending OAuth redirects held in memory.
const maxOAuthStates = 10_000

// Server runs the chorale HTTP server.
type Server struct {
	config      *config.Config
	store       *store.SQLiteStore
	api         *api.API
	states      *nonce.Store[oauth.State]
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	baseURL     string
	logger      *slog.Logger
}

// BaseURL resolves the external site URL from config, falling back to the
// listen address or the tailscale hostname.
func BaseURL(cfg *config.Config, logger *slog.Logger) string {
	if cfg.Site.BaseURL != "" {
		return strings.TrimSuffix(cfg.Site.BaseURL, "/")
	}
	if !cfg.Tailscale.Enabled {
		addr := cfg.Server.HTTPAddr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		return "http://" + addr
	}
	if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
		logger.Warn("site.base_url not set; OAuth callbacks and passkeys need the full tailnet URL (e.g. https://choir.your-tailnet.ts.net)")
		return "https://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Tailscale.Hostname
}

// newStorage picks the upload backend. Local uploads are also served by the
// returned handler; S3 objects are served by the bucket's public URL.
func newStorage(ctx context.Context, cfg config.UploadsConfig) (media.Storage, http.Handler, error) {
	switch cfg.Backend {
	case config.UploadBackendS3:
		s, err := media.NewS3Storage(ctx, media.S3Config{
			Endpoint:      cfg.S3.Endpoint,
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initializing s3 storage: %w", err)
		}
		return s, nil, nil
	default:
		s, err := media.NewLocalStorage(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing local storage: %w", err)
		}
		return s, s.Handler(), nil
	}
}

// newProviders builds the configured OAuth providers.
func newProviders(cfg config.OAuthConfig, baseURL string) ([]*oauth.Provider, error) {
	creds := map[string]config.ProviderConfig{
		oauth.Google: cfg.Google,
		oauth.Naver:  cfg.Naver,
		oauth.Kakao:  cfg.Kakao,
	}
	var providers []*oauth.Provider
	for _, name := range oauth.Names {
		c := creds[name]
		if !c.Enabled() {
			continue
		}
		p, err := oauth.NewProvider(name, oauth.Credentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret}, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring %s: %w", name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// New creates a server from cfg. The caller must Run or Shutdown it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	srv, err := build(ctx, cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return srv, nil
}

func build(ctx context.Context, cfg *config.Config, s *store.SQLiteStore, logger *slog.Logger) (*Server, error) {
	baseURL := BaseURL(cfg, logger)

	storage, uploads, err := newStorage(ctx, cfg.Uploads)
	if err != nil {
		return nil, err
	}
	transcoder := media.NewTranscoder(cfg.Uploads.FFmpegPath, cfg.Uploads.TranscodeTimeout, logger.With("component", "transcoder"))

	sessions, err := auth.NewSessions([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating session signer: %w", err)
	}
	resolver := auth.NewResolver(s, sessions, auth.ResolverConfig{
		CredentialsEnabled: cfg.DevLoginEnabled(),
		DevPassword:        cfg.Auth.DevPassword,
	}, logger.With("component", "auth"))
	if cfg.DevLoginEnabled() {
		logger.Warn("email + shared password login is enabled; do not expose this outside development")
	}

	providers, err := newProviders(cfg.OAuth, baseURL)
	if err != nil {
		return nil, err
	}
	states := nonce.New[oauth.State](oauth.StateTTL, maxOAuthStates)
	flow := oauth.NewFlow(providers, states, s, resolver, logger.With("component", "oauth"))

	a, err := api.New(api.Config{
		BaseURL:         baseURL,
		SiteName:        cfg.Site.Name,
		MaxRequestBytes: cfg.Uploads.MaxRequestBytes,
		RefreshAfter:    cfg.Auth.RefreshAfter,
	}, api.Services{
		Store:    s,
		Resolver: resolver,
		Cookies:  auth.NewCookies(baseURL, cfg.Auth.SessionTTL),
		OAuth:    flow,
		Members:  admin.NewMembers(s, logger.With("component", "members")),
		Board:    board.NewService(s, storage, transcoder, logger.With("component", "board")),
		Catalog:  library.NewCatalog(s, storage, transcoder, logger.With("component", "library")),
		Folders:  library.NewFolders(s),
		Uploads:  uploads,
	}, logger.With("component", "api"))
	if err != nil {
		states.Close()
		return nil, fmt.Errorf("creating api: %w", err)
	}

	logger.Info("server configured",
		"base_url", baseURL,
		"uploads", cfg.Uploads.Backend,
		"oauth_providers", len(providers),
		"credentials", cfg.DevLoginEnabled(),
	)

	return &Server{
		config:  cfg,
		store:   s,
		api:     a,
		states:  states,
		baseURL: baseURL,
		logger:  logger.With("component", "server"),
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is canceled or the listener fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.listen(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "base_url", s.baseURL)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serveErr = <-errCh:
		s.logger.Error("server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	shutdownErr := s.Shutdown(shutdownCtx)
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.listenTailscale(ctx)
	}
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "chorale", "tailscale"), nil
}

func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
	}
	return authKey, nil
}

func (s *Server) listenTailscale(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}
	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(status)

	switch {
	case tsCfg.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		s.logger.Info("enabling HTTPS with tailscale certs on :443")
		ln, err := s.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := s.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

func (s *Server) logTailscaleStatus(status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	s.logger.Info("tailscale node ready", "hostname", s.config.Tailscale.Hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
	if dnsName != "" && s.config.Site.BaseURL == "" && !strings.Contains(s.baseURL, dnsName) {
		s.logger.Warn("site.base_url does not match the tailnet name; set it so OAuth and passkeys use the right origin", "dns_name", dnsName)
	}
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases the store, tailscale node and
// in-memory ceremony stores.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	s.api.Close()
	s.states.Close()
	errs = appendCloseError(errs, "store close", s.store.Close())

	return errors.Join(errs...)
}
