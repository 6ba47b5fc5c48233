// ABOUTME: Tests for path-based access decisions
// ABOUTME: Table of paths against anonymous, pending, rejected, member and admin sessions

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/chorale/internal/store"
)

func claimsFor(status store.UserStatus, role store.UserRole) *Claims {
	c := &Claims{Status: status, Role: role}
	c.Subject = "user-1"
	return c
}

func TestDecide(t *testing.T) {
	pending := claimsFor(store.UserStatusPending, store.RoleMember)
	rejected := claimsFor(store.UserStatusRejected, store.RoleMember)
	member := claimsFor(store.UserStatusApproved, store.RoleMember)
	admin := claimsFor(store.UserStatusApproved, store.RoleAdmin)

	tests := []struct {
		name   string
		path   string
		claims *Claims
		want   Decision
	}{
		{"public login", "/login", nil, Decision{Verdict: Allow}},
		{"public auth api", "/api/auth/providers", nil, Decision{Verdict: Allow}},
		{"public health", "/api/health", nil, Decision{Verdict: Allow}},
		{"public uploads", "/uploads/a.png", nil, Decision{Verdict: Allow}},
		{"anonymous api", "/api/posts", nil, Decision{Verdict: Unauthorized}},
		{"anonymous page", "/board", nil, Decision{Verdict: Redirect, Location: "/login?callbackUrl=%2Fboard"}},

		{"pending page", "/pending", pending, Decision{Verdict: Allow}},
		{"pending intro", "/api/users/me/intro", pending, Decision{Verdict: Allow}},
		{"pending claim", "/api/admin/claim", pending, Decision{Verdict: Allow}},
		{"pending board", "/board", pending, Decision{Verdict: Redirect, Location: "/pending"}},
		{"pending api", "/api/posts", pending, Decision{Verdict: Redirect, Location: "/pending"}},
		{"pending me", "/api/users/me", pending, Decision{Verdict: Redirect, Location: "/pending"}},
		{"pending chat", "/api/chat", pending, Decision{Verdict: Redirect, Location: "/pending"}},
		{"pending still sees public", "/api/auth/signout", pending, Decision{Verdict: Allow}},

		{"rejected page", "/", rejected, Decision{Verdict: Redirect, Location: "/login?error=rejected"}},
		{"rejected api", "/api/posts", rejected, Decision{Verdict: Redirect, Location: "/login?error=rejected"}},
		{"rejected signout", "/api/auth/signout", rejected, Decision{Verdict: Allow}},

		{"member board", "/board", member, Decision{Verdict: Allow}},
		{"member admin page", "/admin", member, Decision{Verdict: Redirect, Location: "/"}},
		{"member admin subpage", "/admin/users", member, Decision{Verdict: Redirect, Location: "/"}},
		{"member admin claim", "/admin/claim", member, Decision{Verdict: Allow}},
		{"member admin api reaches handler", "/api/admin/users", member, Decision{Verdict: Allow}},
		{"member lookalike path", "/administrator", member, Decision{Verdict: Allow}},

		{"admin page", "/admin/users", admin, Decision{Verdict: Allow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.path, tt.claims))
		})
	}
}

func TestGateMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := GateMiddleware()(ok)

	t.Run("anonymous api is 401 json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	})

	t.Run("pending is redirected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/chat", nil)
		req = req.WithContext(WithClaims(req.Context(), claimsFor(store.UserStatusPending, store.RoleMember)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/pending", rec.Header().Get("Location"))
	})

	t.Run("approved passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
		req = req.WithContext(WithClaims(req.Context(), claimsFor(store.UserStatusApproved, store.RoleMember)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})
}

func TestDecisionTarget(t *testing.T) {
	pending := claimsFor(store.UserStatusPending, store.RoleMember)
	approved := claimsFor(store.UserStatusApproved, store.RoleMember)

	assert.Equal(t, "/pending", Decide("/board", pending).Target("/board"))
	assert.Equal(t, "/board", Decide("/board", approved).Target("/board"))
	assert.Equal(t, "/login", Decide("/api/posts", nil).Target("/api/posts"))
}
