// ABOUTME: Tests for the session cookie middleware
// ABOUTME: Covers anonymous requests, valid cookies, stale token refresh and the admin gate

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorale/internal/store"
)

func captureClaims(got **Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewCookies(t *testing.T) {
	assert.True(t, NewCookies("https://choir.example", time.Hour).Secure)
	assert.False(t, NewCookies("http://localhost:8080", time.Hour).Secure)
}

func TestCookies_SetAndClear(t *testing.T) {
	c := NewCookies("https://choir.example", 30*24*time.Hour)

	rec := httptest.NewRecorder()
	c.Set(rec, "tok")
	cookie := rec.Result().Cookies()[0]
	assert.Equal(t, CookieName, cookie.Name)
	assert.Equal(t, "tok", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 30*24*3600, cookie.MaxAge)

	rec = httptest.NewRecorder()
	c.Clear(rec)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestSessionMiddleware_Anonymous(t *testing.T) {
	r, _ := setupResolver(t, devConfig)
	cookies := NewCookies("http://localhost", time.Hour)

	var got *Claims
	h := SessionMiddleware(r, cookies, 5*time.Minute)(captureClaims(&got))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, got)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Nil(t, got)
	assert.Empty(t, rec.Result().Cookies())
}

func TestSessionMiddleware_FreshToken(t *testing.T) {
	r, _ := setupResolver(t, devConfig)
	cookies := NewCookies("http://localhost", time.Hour)
	sess, err := r.CredentialSignIn(context.Background(), "a@example.com", "test")
	require.NoError(t, err)

	var got *Claims
	h := SessionMiddleware(r, cookies, 5*time.Minute)(captureClaims(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, got)
	assert.Equal(t, sess.Claims.UserID(), got.UserID())
	assert.Empty(t, rec.Result().Cookies(), "fresh tokens are not rewritten")
}

func TestSessionMiddleware_RefreshesStaleToken(t *testing.T) {
	r, s := setupResolver(t, devConfig)
	cookies := NewCookies("http://localhost", time.Hour)
	ctx := context.Background()

	_, err := r.CredentialSignIn(ctx, "admin@example.com", "test")
	require.NoError(t, err)

	r.sessions.now = func() time.Time { return time.Now().Add(-10 * time.Minute) }
	sess, err := r.CredentialSignIn(ctx, "singer@example.com", "test")
	require.NoError(t, err)
	r.sessions.now = time.Now
	require.Equal(t, store.UserStatusPending, sess.Claims.Status)

	require.NoError(t, s.UpdateUserStatus(ctx, sess.Claims.UserID(), store.UserStatusApproved))

	var got *Claims
	h := SessionMiddleware(r, cookies, 5*time.Minute)(captureClaims(&got))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, got)
	assert.Equal(t, store.UserStatusApproved, got.Status)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, sess.Token, rec.Result().Cookies()[0].Value)
}

func TestRequireAdminHTTP(t *testing.T) {
	h := RequireAdminHTTP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req = req.WithContext(WithClaims(req.Context(), claimsFor(store.UserStatusApproved, store.RoleMember)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req = req.WithContext(WithClaims(req.Context(), claimsFor(store.UserStatusApproved, store.RoleAdmin)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
