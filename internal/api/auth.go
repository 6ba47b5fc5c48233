// ABOUTME: Sign-in endpoints: provider list, OAuth redirects, credential login, session and sign-out
// ABOUTME: Successful sign-ins set the session cookie and send the browser on

package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"

	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/oauth"
)

// providerInfo is one entry of the sign-in options list.
type providerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (a *API) providerList() []providerInfo {
	var out []providerInfo
	if a.svc.OAuth != nil {
		for _, p := range a.svc.OAuth.Enabled() {
			out = append(out, providerInfo{ID: p.Name, Name: p.Label, Type: "oauth"})
		}
	}
	if a.svc.Resolver.CredentialsEnabled() {
		out = append(out, providerInfo{ID: string(auth.MethodCredentials), Name: "Credentials", Type: "credentials"})
	}
	if a.webauthn != nil {
		out = append(out, providerInfo{ID: string(auth.MethodPasskey), Name: "Passkey", Type: "webauthn"})
	}
	return out
}

func (a *API) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers := a.providerList()
	if providers == nil {
		providers = []providerInfo{}
	}
	a.sendJSON(w, http.StatusOK, providers)
}

// handleSession returns the caller's claims, or null when signed out.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		a.sendJSON(w, http.StatusOK, nil)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]any{
		"id":     claims.UserID(),
		"name":   claims.Name,
		"email":  claims.Email,
		"image":  claims.Image,
		"status": claims.Status,
		"role":   claims.Role,
	})
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	a.svc.Cookies.Clear(w)
	if isFormPost(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// credentialsRequest is the JSON form of a credential login.
type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CallbackURL string `json:"callbackUrl"`
}

func (a *API) handleCredentials(w http.ResponseWriter, r *http.Request) {
	form := isFormPost(r)

	var req credentialsRequest
	if form {
		req = credentialsRequest{
			Email:       r.PostFormValue("email"),
			Password:    r.PostFormValue("password"),
			CallbackURL: r.PostFormValue("callbackUrl"),
		}
	} else if err := decodeJSON(r, &req); err != nil {
		a.sendError(w, r, err)
		return
	}

	sess, err := a.svc.Resolver.CredentialSignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if form && errors.Is(err, auth.ErrInvalidCredentials) {
			http.Redirect(w, r, "/login?error=credentials", http.StatusSeeOther)
			return
		}
		a.sendError(w, r, err)
		return
	}

	a.svc.Cookies.Set(w, sess.Token)
	dest := landing(sess.Claims, oauth.SafeCallback(req.CallbackURL))
	if form {
		http.Redirect(w, r, dest, http.StatusSeeOther)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]any{"ok": true, "redirect": dest, "status": sess.Claims.Status})
}

func (a *API) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	if a.svc.OAuth == nil {
		a.sendError(w, r, oauth.ErrUnknownProvider)
		return
	}
	target, err := a.svc.OAuth.AuthURL(r.PathValue("provider"), r.URL.Query().Get("callbackUrl"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	u, err := url.Parse(target)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.setStateCookie(w, u.Query().Get("state"), int(oauth.StateTTL.Seconds()))
	http.Redirect(w, r, target, http.StatusFound)
}

// oauthStateCookie binds a pending OAuth login to the browser that started it.
const oauthStateCookie = "chorale_oauth_state"

func (a *API) setStateCookie(w http.ResponseWriter, state string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.svc.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// stateMatches reports whether the callback's state is the one this browser
// was sent off with.
func stateMatches(r *http.Request, state string) bool {
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if a.svc.OAuth == nil {
		a.sendError(w, r, oauth.ErrUnknownProvider)
		return
	}
	q := r.URL.Query()
	matches := stateMatches(r, q.Get("state"))
	a.setStateCookie(w, "", -1)
	if e := q.Get("error"); e != "" {
		a.logger.Info("oauth provider returned error", "provider", r.PathValue("provider"), "error", e)
		http.Redirect(w, r, "/login?error="+url.QueryEscape(e), http.StatusFound)
		return
	}

	if !matches {
		a.logger.Warn("oauth callback state does not match this browser", "provider", r.PathValue("provider"))
		a.sendError(w, r, oauth.ErrInvalidState)
		return
	}

	sess, callback, err := a.svc.OAuth.Complete(r.Context(), r.PathValue("provider"), q.Get("code"), q.Get("state"))
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) || errors.Is(err, oauth.ErrUnknownProvider) {
			a.sendError(w, r, err)
			return
		}
		a.logger.Error("oauth callback failed", "provider", r.PathValue("provider"), "error", err)
		http.Redirect(w, r, "/login?error=oauth", http.StatusFound)
		return
	}

	a.svc.Cookies.Set(w, sess.Token)
	http.Redirect(w, r, landing(sess.Claims, callback), http.StatusFound)
}

// landing picks where a freshly signed-in member goes.
func landing(claims *auth.Claims, callback string) string {
	return auth.Decide(callback, claims).Target(callback)
}
