// ABOUTME: Chat endpoints polled by clients: cursor-paged history and posting a message
// ABOUTME: Only approved members may read or write

package api

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/store"
)

// Chat paging and message limits.
const (
	DefaultChatLimit = 50
	MaxChatLimit     = 100
	MaxChatLength    = 2000
)

// chatLimit parses the limit query value. Invalid or non-positive values
// fall back to the default; larger ones are capped.
func chatLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultChatLimit
	}
	return min(n, MaxChatLimit)
}

func (a *API) requireApproved(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims := auth.MustFromContext(r.Context())
	if !claims.IsApproved() {
		a.sendJSONError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return claims, true
}

func (a *API) handleListChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireApproved(w, r); !ok {
		return
	}
	q := r.URL.Query()
	msgs, err := a.svc.Store.ListChatMessages(r.Context(), q.Get("before"), chatLimit(q.Get("limit")))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newChatViews(msgs))
}

type chatRequest struct {
	Content string `json:"content"`
}

func (a *API) handleSendChat(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.requireApproved(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		a.sendError(w, r, err)
		return
	}

	text := strings.TrimSpace(req.Content)
	if text == "" || utf8.RuneCountInString(text) > MaxChatLength {
		a.sendJSONError(w, http.StatusBadRequest, "message must be 1-2000 characters")
		return
	}

	msg := &store.ChatMessage{Content: text, SenderID: claims.UserID()}
	if err := a.svc.Store.CreateChatMessage(r.Context(), msg); err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newChatViews([]store.ChatMessage{*msg})[0])
}
