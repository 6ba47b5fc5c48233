// ABOUTME: Tests for credential sign-in, the session endpoint, sign-out, admin claim and passkey ceremonies
// ABOUTME: Checks the first-user bootstrap through the HTTP surface

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/nonce"
	"github.com/2389/chorale/internal/oauth"
	"github.com/2389/chorale/internal/store"
)

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestCredentials_FirstUserIsAdmin(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/auth/credentials", map[string]string{
		"email": "First@Example.com", "password": "test",
	}), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	first, err := env.store.GetUserByEmail(context.Background(), "first@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, first.Role)
	assert.Equal(t, store.UserStatusApproved, first.Status)

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/auth/credentials", map[string]string{
		"email": "second@example.com", "password": "test",
	}), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "/pending", body["redirect"])

	second, err := env.store.GetUserByEmail(context.Background(), "second@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.RoleMember, second.Role)
	assert.Equal(t, store.UserStatusPending, second.Status)
	assert.Equal(t, "second", second.Name)
}

func TestCredentials_WrongPassword(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/auth/credentials", map[string]string{
		"email": "x@example.com", "password": "nope",
	}), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	n, err := env.store.CountUsers(context.Background(), store.UserFilter{})
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is created on a failed login")
}

func TestCredentials_FormRedirects(t *testing.T) {
	env := setupAPI(t)

	form := url.Values{"email": {"f@example.com"}, "password": {"test"}, "callbackUrl": {"/library"}}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/credentials", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(t, req, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/library", rec.Header().Get("Location"))

	form.Set("password", "bad")
	req = httptest.NewRequest(http.MethodPost, "/api/auth/credentials", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = env.do(t, req, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?error=credentials", rec.Header().Get("Location"))
}

func TestSessionAndSignOut(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	member := env.user(t, "m@example.com", store.UserStatusApproved, store.RoleMember)
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), member)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, member.ID, body["id"])
	assert.Equal(t, "approved", body["status"])
	assert.Equal(t, "member", body["role"])

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/auth/signout", nil), member)
	require.Equal(t, http.StatusOK, rec.Code)
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.Negative(t, c.MaxAge)
}

func TestClaim(t *testing.T) {
	env := setupAPI(t)
	pending := env.user(t, "p@example.com", store.UserStatusPending, store.RoleMember)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/admin/claim", nil), pending)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, sessionCookie(rec), "session is re-minted with the new role")

	claims, err := env.sessions.Parse(sessionCookie(rec).Value)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.True(t, claims.IsApproved())

	other := env.user(t, "o@example.com", store.UserStatusPending, store.RoleMember)
	rec = env.do(t, jsonRequest(http.MethodPost, "/api/admin/claim", nil), other)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownOAuthProvider(t *testing.T) {
	env := setupAPI(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// withGoogle wires a Google provider backed by a local fake into env.
func withGoogle(t *testing.T, env *testEnv) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"sub": "g-1", "email": "alto@example.com", "name": "Alto"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := oauth.NewProvider(oauth.Google, oauth.Credentials{ClientID: "id", ClientSecret: "secret"}, "http://localhost:8080")
	require.NoError(t, err)
	p.Config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.ProfileURL = srv.URL + "/userinfo"

	states := nonce.New[oauth.State](oauth.StateTTL, 100)
	t.Cleanup(states.Close)
	env.api.svc.OAuth = oauth.NewFlow([]*oauth.Provider{p}, states, env.store, env.api.svc.Resolver, nil)
}

func stateCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookie {
			return c
		}
	}
	return nil
}

func TestOAuth_CallbackBoundToBrowser(t *testing.T) {
	env := setupAPI(t)
	withGoogle(t, env)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/google/login?callbackUrl=/board", nil), nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	c := stateCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, state, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Positive(t, c.MaxAge)

	callback := "/api/auth/google/callback?code=good&state=" + url.QueryEscape(state)

	// a browser that never started this login
	rec = env.do(t, httptest.NewRequest(http.MethodGet, callback, nil), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	req := httptest.NewRequest(http.MethodGet, callback, nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "someone-elses-state"})
	rec = env.do(t, req, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	req = httptest.NewRequest(http.MethodGet, callback, nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state})
	rec = env.do(t, req, nil)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	require.NotNil(t, sessionCookie(rec))
	cleared := stateCookie(rec)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	u, err := env.store.GetUserByEmail(context.Background(), "alto@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alto", u.Name)
}

func TestPasskeyRegisterBegin(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/auth/passkey/register/begin", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	member := env.user(t, "m@example.com", store.UserStatusApproved, store.RoleMember)
	rec = env.do(t, jsonRequest(http.MethodPost, "/api/auth/passkey/register/begin", nil), member)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.NotEmpty(t, body["sessionToken"])
	assert.NotNil(t, body["options"])
	assert.Equal(t, 1, env.api.ceremonies.Len())
}

func TestPasskeyLogin_InvalidSession(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/auth/passkey/login/begin", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/auth/passkey/login/finish", map[string]any{
		"sessionToken": "unknown",
		"response":     map[string]any{},
	}), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelyingParty(t *testing.T) {
	id, origins := relyingParty("https://choir.example.com")
	assert.Equal(t, "choir.example.com", id)
	assert.Equal(t, []string{"https://choir.example.com", "http://choir.example.com"}, origins)

	id, origins = relyingParty("")
	assert.Equal(t, "localhost", id)
	assert.Len(t, origins, 2)
}
