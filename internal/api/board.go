// ABOUTME: Board endpoints for posts and comments, including multipart attachment uploads
// ABOUTME: Responses carry stored content plus its rendered, sanitized HTML

package api

import (
	"net/http"

	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/board"
)

func (a *API) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := a.svc.Board.ListPosts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newPostViews(posts))
}

func (a *API) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.svc.Board.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newPostView(post))
}

func (a *API) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.sendError(w, r, err)
		return
	}
	claims := auth.MustFromContext(r.Context())
	post, err := a.svc.Board.CreatePost(r.Context(), claims.UserID(),
		r.FormValue("title"), r.FormValue("content"), formFiles(r, "attachments"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newPostView(post))
}

func (a *API) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.sendError(w, r, err)
		return
	}
	post, err := a.svc.Board.UpdatePost(r.Context(), actor(r), r.PathValue("id"),
		r.FormValue("title"), r.FormValue("content"), formFiles(r, "attachments"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newPostView(post))
}

func (a *API) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Board.DeletePost(r.Context(), actor(r), r.PathValue("id")); err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleToggleNotice(w http.ResponseWriter, r *http.Request) {
	post, err := a.svc.Board.ToggleNotice(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newPostView(post))
}

func (a *API) handleToggleFixed(w http.ResponseWriter, r *http.Request) {
	post, err := a.svc.Board.ToggleFixed(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newPostView(post))
}

func (a *API) handleListComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := board.Target{PostID: q.Get("postId"), SheetMusicID: q.Get("sheetMusicId")}
	comments, err := a.svc.Board.ListComments(r.Context(), target)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newCommentViews(comments))
}

func (a *API) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.sendError(w, r, err)
		return
	}
	claims := auth.MustFromContext(r.Context())
	target := board.Target{PostID: formValue(r, "postId"), SheetMusicID: formValue(r, "sheetMusicId")}
	comment, err := a.svc.Board.CreateComment(r.Context(), claims.UserID(), target,
		r.FormValue("content"), formFiles(r, "attachments"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newCommentView(comment))
}

func (a *API) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.sendError(w, r, err)
		return
	}
	comment, err := a.svc.Board.UpdateComment(r.Context(), actor(r), r.PathValue("id"),
		r.FormValue("content"), formFiles(r, "attachments"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newCommentView(comment))
}

func (a *API) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Board.DeleteComment(r.Context(), actor(r), r.PathValue("id")); err != nil {
		a.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
