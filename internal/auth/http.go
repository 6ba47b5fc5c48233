// ABOUTME: HTTP session middleware reading the signed cookie into the request context
// ABOUTME: Refreshes stale tokens from the database and rewrites the cookie

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// CookieName is the session cookie name.
const CookieName = "chorale_session"

// Cookies writes and reads the session cookie.
type Cookies struct {
	Secure bool
	MaxAge time.Duration
}

// NewCookies derives cookie settings from the site base URL.
func NewCookies(baseURL string, maxAge time.Duration) *Cookies {
	return &Cookies{
		Secure: strings.HasPrefix(baseURL, "https://"),
		MaxAge: maxAge,
	}
}

// Set writes the session token.
func (c *Cookies) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the session cookie.
func (c *Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the raw token, or "" when there is no session cookie.
func (c *Cookies) Read(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SessionMiddleware attaches the caller's claims to the request context.
// Missing, invalid or expired tokens leave the request anonymous. A valid
// token older than refreshAfter is re-resolved against the database and the
// cookie is rewritten.
func SessionMiddleware(resolver *Resolver, cookies *Cookies, refreshAfter time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookies.Read(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := resolver.sessions.Parse(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if resolver.sessions.now().Sub(claims.IssuedTime()) > refreshAfter {
				sess, err := resolver.Refresh(r.Context(), claims)
				if err != nil {
					resolver.logger.Error("session refresh failed", "user_id", claims.UserID(), "error", err)
				} else {
					cookies.Set(w, sess.Token)
					claims = sess.Claims
				}
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdminHTTP rejects non-admin callers with 403. Must be used after
// SessionMiddleware.
func RequireAdminHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := FromContext(r.Context())
			if claims == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !claims.IsAdmin() {
				writeJSONError(w, http.StatusForbidden, "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
