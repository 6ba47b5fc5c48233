// ABOUTME: Member endpoints: the caller's record, the pending intro form and admin claim
// ABOUTME: Admin user management: list, approve, reject, promote and delete

package api

import (
	"net/http"

	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/store"
)

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustFromContext(r.Context())
	u, err := a.svc.Store.GetUser(r.Context(), claims.UserID())
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, u)
}

type introRequest struct {
	IntroMessage string `json:"introMessage"`
	Name         string `json:"name"`
}

func (a *API) handleIntro(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustFromContext(r.Context())
	form := isFormPost(r)

	var req introRequest
	if form {
		req = introRequest{IntroMessage: r.PostFormValue("introMessage"), Name: r.PostFormValue("name")}
	} else if err := decodeJSON(r, &req); err != nil {
		a.sendError(w, r, err)
		return
	}

	if err := a.svc.Members.UpdateIntro(r.Context(), claims.UserID(), req.IntroMessage, req.Name); err != nil {
		if form {
			http.Redirect(w, r, "/pending?error=intro", http.StatusSeeOther)
			return
		}
		a.sendError(w, r, err)
		return
	}
	if form {
		http.Redirect(w, r, "/pending?saved=1", http.StatusSeeOther)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleClaim makes the caller the first admin. The session is re-minted so
// the new role applies immediately.
func (a *API) handleClaim(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustFromContext(r.Context())
	if err := a.svc.Members.Claim(r.Context(), claims.UserID()); err != nil {
		a.sendError(w, r, err)
		return
	}
	sess, err := a.svc.Resolver.Refresh(r.Context(), claims)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.svc.Cookies.Set(w, sess.Token)
	if isFormPost(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	var status *store.UserStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := store.UserStatus(s)
		status = &st
	}
	users, err := a.svc.Members.ListUsers(r.Context(), status)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, users)
}

func (a *API) handleApprove(w http.ResponseWriter, r *http.Request) {
	a.memberAction(w, r, a.svc.Members.Approve(r.Context(), r.PathValue("id")))
}

func (a *API) handleReject(w http.ResponseWriter, r *http.Request) {
	a.memberAction(w, r, a.svc.Members.Reject(r.Context(), r.PathValue("id")))
}

func (a *API) handlePromote(w http.ResponseWriter, r *http.Request) {
	a.memberAction(w, r, a.svc.Members.Promote(r.Context(), r.PathValue("id")))
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustFromContext(r.Context())
	a.memberAction(w, r, a.svc.Members.Delete(r.Context(), claims.UserID(), r.PathValue("id")))
}

func (a *API) memberAction(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}
