// ABOUTME: Board write paths: posts and comments with uploaded attachments
// ABOUTME: Files are stored, placeholders resolved, then rows written in one transaction

package board

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/store"
)

// ErrForbidden is returned when the actor may not change the target.
var ErrForbidden = errors.New("forbidden")

// ValidationError carries a message safe to show the submitter.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(msg string) error {
	return &ValidationError{Msg: msg}
}

// Actor is the member performing a write.
type Actor struct {
	ID    string
	Admin bool
}

// Preparer turns an upload body into the bytes to store.
type Preparer interface {
	Prepare(ctx context.Context, r io.Reader, mimeType string) (*media.Prepared, error)
}

// Service implements post and comment writes.
type Service struct {
	store      store.BoardStore
	storage    media.Storage
	transcoder Preparer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a board service. transcoder may be nil, in which case
// videos are stored as uploaded.
func NewService(s store.BoardStore, storage media.Storage, transcoder Preparer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      s,
		storage:    storage,
		transcoder: transcoder,
		logger:     logger.With("component", "board"),
		now:        time.Now,
	}
}
