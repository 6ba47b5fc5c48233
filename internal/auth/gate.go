// ABOUTME: Path-based access decisions from session status and role
// ABOUTME: Pure Decide function plus the HTTP middleware that enforces it

package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/2389/chorale/internal/store"
)

// publicPrefixes are served to everyone, signed in or not.
var publicPrefixes = []string{"/login", "/api/auth", "/api/health", "/uploads/", "/static/"}

// Verdict is the outcome of an access decision.
type Verdict int

const (
	Allow Verdict = iota
	Unauthorized
	Redirect
)

// Decision says whether a request proceeds, and where to send it if not.
type Decision struct {
	Verdict  Verdict
	Location string
}

func allow() Decision { return Decision{Verdict: Allow} }
func unauthorized() Decision { return Decision{Verdict: Unauthorized} }
func redirect(loc string) Decision { return Decision{Verdict: Redirect, Location: loc} }

// Target is where a browser asking for path ends up.
func (d Decision) Target(path string) string {
	switch d.Verdict {
	case Redirect:
		return d.Location
	case Unauthorized:
		return "/login"
	}
	return path
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func isAdminPage(path string) bool {
	return path == "/admin" || strings.HasPrefix(path, "/admin/")
}

// pendingAllowed lists what a member awaiting approval may reach.
func pendingAllowed(path string) bool {
	return path == "/pending" || path == "/api/users/me/intro" || strings.HasPrefix(path, "/api/admin/claim")
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Decide applies the access rules to a request path. claims is nil for
// anonymous requests.
func Decide(path string, claims *Claims) Decision {
	if hasAnyPrefix(path, publicPrefixes) {
		return allow()
	}

	if claims == nil {
		if isAPI(path) {
			return unauthorized()
		}
		return redirect("/login?callbackUrl=" + url.QueryEscape(path))
	}

	switch claims.Status {
	case store.UserStatusPending:
		if pendingAllowed(path) {
			return allow()
		}
		return redirect("/pending")
	case store.UserStatusRejected:
		return redirect("/login?error=rejected")
	}

	if isAdminPage(path) && path != "/admin/claim" && !claims.IsAdmin() {
		return redirect("/")
	}
	return allow()
}

// GateMiddleware enforces Decide. It must run after SessionMiddleware.
func GateMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Decide(r.URL.Path, FromContext(r.Context()))
			switch d.Verdict {
			case Unauthorized:
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			case Redirect:
				http.Redirect(w, r, d.Location, http.StatusFound)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
