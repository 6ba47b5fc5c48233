// ABOUTME: HTTP API wiring: route table, middleware chain and shared dependencies
// ABOUTME: Every JSON endpoint and page of the site is registered here

package api

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/2389/chorale/internal/admin"
	"github.com/2389/chorale/internal/assets"
	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/board"
	"github.com/2389/chorale/internal/library"
	"github.com/2389/chorale/internal/nonce"
	"github.com/2389/chorale/internal/oauth"
	"github.com/2389/chorale/internal/store"
)

// CeremonyTTL bounds a passkey registration or login ceremony.
const CeremonyTTL = 5 * time.Minute

// Config holds the HTTP-facing settings.
type Config struct {
	BaseURL         string
	SiteName        string
	MaxRequestBytes int64
	RefreshAfter    time.Duration
}

// Services are the domain components the handlers call into.
type Services struct {
	Store    store.Store
	Resolver *auth.Resolver
	Cookies  *auth.Cookies
	OAuth    *oauth.Flow
	Members  *admin.Members
	Board    *board.Service
	Catalog  *library.Catalog
	Folders  *library.Folders

	// Uploads serves stored files under /uploads/. Nil when files live in
	// object storage.
	Uploads http.Handler
}

// API serves the site.
type API struct {
	cfg        Config
	svc        Services
	webauthn   *webauthn.WebAuthn
	ceremonies *nonce.Store[ceremony]
	pages      *template.Template
	logger     *slog.Logger
	handler    http.Handler
}

// New builds the API and its route table.
func New(cfg Config, svc Services, logger *slog.Logger) (*API, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "chorale"
	}

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parsing page templates: %w", err)
	}

	a := &API{
		cfg:        cfg,
		svc:        svc,
		ceremonies: nonce.New[ceremony](CeremonyTTL, 10000),
		pages:      pages,
		logger:     logger.With("component", "api"),
	}

	if err := a.initWebAuthn(); err != nil {
		a.ceremonies.Close()
		return nil, fmt.Errorf("configuring passkeys: %w", err)
	}

	mux := http.NewServeMux()
	a.routes(mux)

	var h http.Handler = mux
	h = auth.GateMiddleware()(h)
	h = auth.SessionMiddleware(svc.Resolver, svc.Cookies, cfg.RefreshAfter)(h)
	a.handler = h
	return a, nil
}

// Handler returns the root handler with session and gate middleware applied.
func (a *API) Handler() http.Handler {
	return a.handler
}

// Close stops background cleanup of passkey ceremonies.
func (a *API) Close() {
	a.ceremonies.Close()
}

func (a *API) routes(mux *http.ServeMux) {
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAdminHTTP()(h)
	}

	mux.HandleFunc("GET /api/health", a.handleHealth)

	// Sign-in
	mux.HandleFunc("GET /api/auth/providers", a.handleProviders)
	mux.HandleFunc("GET /api/auth/session", a.handleSession)
	mux.HandleFunc("POST /api/auth/signout", a.handleSignOut)
	mux.HandleFunc("POST /api/auth/credentials", a.handleCredentials)
	mux.HandleFunc("GET /api/auth/{provider}/login", a.handleOAuthLogin)
	mux.HandleFunc("GET /api/auth/{provider}/callback", a.handleOAuthCallback)
	mux.HandleFunc("POST /api/auth/passkey/register/begin", a.handlePasskeyRegisterBegin)
	mux.HandleFunc("POST /api/auth/passkey/register/finish", a.handlePasskeyRegisterFinish)
	mux.HandleFunc("POST /api/auth/passkey/login/begin", a.handlePasskeyLoginBegin)
	mux.HandleFunc("POST /api/auth/passkey/login/finish", a.handlePasskeyLoginFinish)

	// Members
	mux.HandleFunc("GET /api/users/me", a.handleMe)
	mux.HandleFunc("PATCH /api/users/me/intro", a.handleIntro)
	mux.HandleFunc("POST /api/users/me/intro", a.handleIntro)
	mux.HandleFunc("POST /api/admin/claim", a.handleClaim)
	mux.Handle("GET /api/admin/users", adminOnly(a.handleListUsers))
	mux.Handle("POST /api/admin/users/{id}/approve", adminOnly(a.handleApprove))
	mux.Handle("POST /api/admin/users/{id}/reject", adminOnly(a.handleReject))
	mux.Handle("POST /api/admin/users/{id}/promote", adminOnly(a.handlePromote))
	mux.Handle("DELETE /api/admin/users/{id}", adminOnly(a.handleDeleteUser))

	// Board
	mux.HandleFunc("GET /api/posts", a.handleListPosts)
	mux.HandleFunc("POST /api/posts", a.handleCreatePost)
	mux.HandleFunc("GET /api/posts/{id}", a.handleGetPost)
	mux.HandleFunc("PUT /api/posts/{id}", a.handleUpdatePost)
	mux.HandleFunc("DELETE /api/posts/{id}", a.handleDeletePost)
	mux.HandleFunc("PATCH /api/posts/{id}/notice", a.handleToggleNotice)
	mux.HandleFunc("PATCH /api/posts/{id}/fixed", a.handleToggleFixed)
	mux.HandleFunc("GET /api/comments", a.handleListComments)
	mux.HandleFunc("POST /api/comments", a.handleCreateComment)
	mux.HandleFunc("PUT /api/comments/{id}", a.handleUpdateComment)
	mux.HandleFunc("DELETE /api/comments/{id}", a.handleDeleteComment)

	// Library
	mux.HandleFunc("GET /api/sheet-music", a.handleListSheetMusic)
	mux.HandleFunc("POST /api/sheet-music", a.handleCreateSheetMusic)
	mux.HandleFunc("POST /api/sheet-music/bulk", a.handleBulkSheetMusic)
	mux.HandleFunc("GET /api/sheet-music/{id}", a.handleGetSheetMusic)
	mux.HandleFunc("PATCH /api/sheet-music/{id}", a.handleUpdateSheetMusic)
	mux.Handle("DELETE /api/sheet-music/{id}", adminOnly(a.handleDeleteSheetMusic))
	mux.HandleFunc("POST /api/sheet-music/{id}/attachments", a.handleSheetMusicAttachments)
	mux.HandleFunc("GET /api/sheet-music/folders", a.handleListFolders)
	mux.Handle("POST /api/sheet-music/folders", adminOnly(a.handleCreateFolder))
	mux.Handle("PATCH /api/sheet-music/folders/{id}", adminOnly(a.handleUpdateFolder))
	mux.Handle("DELETE /api/sheet-music/folders/{id}", adminOnly(a.handleDeleteFolder))

	// Chat
	mux.HandleFunc("GET /api/chat", a.handleListChat)
	mux.HandleFunc("POST /api/chat", a.handleSendChat)

	// Pages and files
	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.HandleFunc("GET /pending", a.handlePendingPage)
	mux.Handle("GET /static/", http.StripPrefix(assets.Prefix, assets.FileServer()))
	mux.Handle("GET /{$}", assets.Index())
	if a.svc.Uploads != nil {
		mux.Handle("GET /uploads/", a.svc.Uploads)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.sendJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
