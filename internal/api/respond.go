// ABOUTME: JSON responses, request decoding and the domain error to status mapping
// ABOUTME: Unexpected errors are logged and reported as a generic 500

package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/2389/chorale/internal/admin"
	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/board"
	"github.com/2389/chorale/internal/library"
	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/oauth"
	"github.com/2389/chorale/internal/store"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// sendJSON writes v as a JSON response.
func (a *API) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (a *API) sendJSONError(w http.ResponseWriter, status int, message string) {
	a.sendJSON(w, status, map[string]string{"error": message})
}

// sendError maps a domain error to its status code.
func (a *API) sendError(w http.ResponseWriter, r *http.Request, err error) {
	var boardErr *board.ValidationError
	var libraryErr *library.ValidationError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &boardErr):
		a.sendJSONError(w, http.StatusBadRequest, boardErr.Msg)
	case errors.As(err, &libraryErr):
		a.sendJSONError(w, http.StatusBadRequest, libraryErr.Msg)
	case errors.As(err, &tooLarge):
		a.sendJSONError(w, http.StatusRequestEntityTooLarge, "request too large")
	case errors.Is(err, board.ErrForbidden):
		a.sendJSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, admin.ErrUserNotFound):
		a.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrFolderNotEmpty),
		errors.Is(err, admin.ErrNotApproved),
		errors.Is(err, admin.ErrAlreadyAdmin),
		errors.Is(err, admin.ErrSelfDelete),
		errors.Is(err, admin.ErrLastAdmin),
		errors.Is(err, admin.ErrAdminExists),
		errors.Is(err, admin.ErrNotPending),
		errors.Is(err, oauth.ErrInvalidState):
		a.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, oauth.ErrUnknownProvider), errors.Is(err, auth.ErrCredentialsDisabled):
		a.sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		a.sendJSONError(w, http.StatusUnauthorized, err.Error())
	default:
		a.logger.Error("internal error", "method", r.Method, "path", r.URL.Path, "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &board.ValidationError{Msg: "invalid JSON body", Err: err}
	}
	return nil
}

// isFormPost reports whether the request came from an HTML form rather
// than a script, so the handler should redirect instead of returning JSON.
func isFormPost(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded"
}

// parseMultipart bounds the body and parses a multipart form.
func (a *API) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	if a.cfg.MaxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxRequestBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return &board.ValidationError{Msg: "invalid form data", Err: err}
	}
	return nil
}

// formFiles returns the uploads submitted under a multipart field.
func formFiles(r *http.Request, field string) []media.Upload {
	if r.MultipartForm == nil {
		return nil
	}
	headers := r.MultipartForm.File[field]
	uploads := make([]media.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, media.FromMultipart(fh))
	}
	return uploads
}

// formFile returns the first upload under a multipart field, or nil.
func formFile(r *http.Request, field string) *media.Upload {
	files := formFiles(r, field)
	if len(files) == 0 {
		return nil
	}
	return &files[0]
}

// actor describes the caller for permission checks.
func actor(r *http.Request) board.Actor {
	claims := auth.MustFromContext(r.Context())
	return board.Actor{ID: claims.UserID(), Admin: claims.IsAdmin()}
}

// formValue returns a trimmed form field.
func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}
