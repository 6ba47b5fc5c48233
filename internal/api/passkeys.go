// ABOUTME: Passkey registration and discoverable login using go-webauthn
// ABOUTME: Ceremony state lives in a short-lived nonce store keyed by a session token

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/store"
)

// ceremony is the server half of an in-flight passkey ceremony.
type ceremony struct {
	session webauthn.SessionData
	userID  string
}

// passkeyUser adapts a member and their credentials to webauthn.User.
type passkeyUser struct {
	user  *store.User
	creds []*store.Passkey
}

func (u *passkeyUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *passkeyUser) WebAuthnName() string {
	if u.user.Email != "" {
		return u.user.Email
	}
	return u.user.Name
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	if u.user.Name != "" {
		return u.user.Name
	}
	return u.WebAuthnName()
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = webauthn.Credential{
			ID:              c.CredentialID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		}
		if c.Transports != "" {
			var transports []protocol.AuthenticatorTransport
			_ = json.Unmarshal([]byte(c.Transports), &transports)
			creds[i].Transport = transports
		}
	}
	return creds
}

// relyingParty derives the WebAuthn RP ID and allowed origins from the
// site's base URL, defaulting to localhost.
func relyingParty(baseURL string) (rpID string, origins []string) {
	rpID = "localhost"
	origins = []string{"http://localhost", "https://localhost"}

	parsed, err := url.Parse(baseURL)
	if baseURL == "" || err != nil || parsed.Hostname() == "" {
		return rpID, origins
	}

	rpID = parsed.Hostname()
	origins = []string{parsed.Scheme + "://" + parsed.Host}
	if parsed.Scheme == "https" {
		origins = append(origins, "http://"+parsed.Host)
	} else {
		origins = append(origins, "https://"+parsed.Host)
	}
	return rpID, origins
}

func (a *API) initWebAuthn() error {
	rpID, origins := relyingParty(a.cfg.BaseURL)
	w, err := webauthn.New(&webauthn.Config{
		RPDisplayName: a.cfg.SiteName,
		RPID:          rpID,
		RPOrigins:     origins,
	})
	if err != nil {
		return err
	}
	a.webauthn = w
	return nil
}

// ceremonyRequest is the body of both finish endpoints.
type ceremonyRequest struct {
	SessionToken string          `json:"sessionToken"`
	Response     json.RawMessage `json:"response"`
}

func (a *API) loadPasskeyUser(ctx context.Context, userID string) (*passkeyUser, error) {
	user, err := a.svc.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	creds, err := a.svc.Store.ListPasskeysByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &passkeyUser{user: user, creds: creds}, nil
}

func (a *API) handlePasskeyRegisterBegin(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		a.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	pkUser, err := a.loadPasskeyUser(r.Context(), claims.UserID())
	if err != nil {
		a.sendError(w, r, err)
		return
	}

	var exclude []protocol.CredentialDescriptor
	for _, c := range pkUser.WebAuthnCredentials() {
		exclude = append(exclude, c.Descriptor())
	}
	options, session, err := a.webauthn.BeginRegistration(pkUser,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithExclusions(exclude),
	)
	if err != nil {
		a.sendError(w, r, err)
		return
	}

	token, err := a.ceremonies.Issue(ceremony{session: *session, userID: pkUser.user.ID})
	if err != nil {
		a.sendError(w, r, err)
		return
	}

	a.sendJSON(w, http.StatusOK, struct {
		Options      *protocol.CredentialCreation `json:"options"`
		SessionToken string                       `json:"sessionToken"`
	}{options, token})
}

func (a *API) handlePasskeyRegisterFinish(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		a.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ceremonyRequest
	if err := decodeJSON(r, &req); err != nil {
		a.sendError(w, r, err)
		return
	}
	c, ok := a.ceremonies.Take(req.SessionToken)
	if !ok || c.userID != claims.UserID() {
		a.sendJSONError(w, http.StatusBadRequest, "invalid or expired passkey session")
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		a.sendJSONError(w, http.StatusBadRequest, "invalid passkey response")
		return
	}

	pkUser, err := a.loadPasskeyUser(r.Context(), c.userID)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	cred, err := a.webauthn.CreateCredential(pkUser, c.session, parsed)
	if err != nil {
		a.logger.Warn("passkey registration rejected", "user_id", c.userID, "error", err)
		a.sendJSONError(w, http.StatusBadRequest, "passkey verification failed")
		return
	}

	transports, err := json.Marshal(cred.Transport)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	pk := &store.Passkey{
		UserID:          c.userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      string(transports),
		SignCount:       cred.Authenticator.SignCount,
	}
	if err := a.svc.Store.CreatePasskey(r.Context(), pk); err != nil {
		if errors.Is(err, store.ErrConflict) {
			a.sendJSONError(w, http.StatusBadRequest, "passkey already registered")
			return
		}
		a.sendError(w, r, err)
		return
	}

	a.logger.Info("passkey registered", "user_id", c.userID, "passkey_id", pk.ID)
	a.sendJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handlePasskeyLoginBegin(w http.ResponseWriter, r *http.Request) {
	options, session, err := a.webauthn.BeginDiscoverableLogin()
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	token, err := a.ceremonies.Issue(ceremony{session: *session})
	if err != nil {
		a.sendError(w, r, err)
		return
	}

	a.sendJSON(w, http.StatusOK, struct {
		Options      *protocol.CredentialAssertion `json:"options"`
		SessionToken string                        `json:"sessionToken"`
	}{options, token})
}

func (a *API) handlePasskeyLoginFinish(w http.ResponseWriter, r *http.Request) {
	var req ceremonyRequest
	if err := decodeJSON(r, &req); err != nil {
		a.sendError(w, r, err)
		return
	}
	c, ok := a.ceremonies.Take(req.SessionToken)
	if !ok {
		a.sendJSONError(w, http.StatusBadRequest, "invalid or expired passkey session")
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		a.sendJSONError(w, http.StatusBadRequest, "invalid passkey response")
		return
	}

	stored, err := a.svc.Store.GetPasskeyByCredentialID(r.Context(), parsed.RawID)
	if errors.Is(err, store.ErrNotFound) {
		a.sendJSONError(w, http.StatusUnauthorized, "unknown credential")
		return
	}
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	pkUser, err := a.loadPasskeyUser(r.Context(), stored.UserID)
	if errors.Is(err, store.ErrNotFound) {
		a.sendJSONError(w, http.StatusUnauthorized, "unknown credential")
		return
	}
	if err != nil {
		a.sendError(w, r, err)
		return
	}

	finder := func(rawID, userHandle []byte) (webauthn.User, error) {
		if len(userHandle) > 0 && string(userHandle) != pkUser.user.ID {
			return nil, errors.New("user handle mismatch")
		}
		return pkUser, nil
	}
	cred, err := a.webauthn.ValidateDiscoverableLogin(finder, c.session, parsed)
	if err != nil {
		a.logger.Warn("passkey login rejected", "user_id", pkUser.user.ID, "error", err)
		a.sendJSONError(w, http.StatusUnauthorized, "passkey verification failed")
		return
	}
	if err := a.svc.Store.UpdatePasskeySignCount(r.Context(), stored.ID, cred.Authenticator.SignCount); err != nil {
		a.logger.Warn("failed to update sign count", "passkey_id", stored.ID, "error", err)
	}

	sess, err := a.svc.Resolver.SignIn(r.Context(), pkUser.user.ID, auth.MethodPasskey)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.svc.Cookies.Set(w, sess.Token)
	a.logger.Info("passkey login", "user_id", pkUser.user.ID)
	a.sendJSON(w, http.StatusOK, map[string]any{"ok": true, "redirect": landing(sess.Claims, "/")})
}
