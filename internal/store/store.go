// ABOUTME: Store interfaces and shared errors for chorale persistence
// ABOUTME: Each concern has its own interface; SQLiteStore implements all of them

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint would be violated
var ErrConflict = errors.New("already exists")

// ErrLastAdmin is returned when deleting a user would leave no admin
var ErrLastAdmin = errors.New("cannot delete the last admin")

// ErrFolderNotEmpty is returned when deleting a folder that still holds items
var ErrFolderNotEmpty = errors.New("folder is not empty")

// Store is the full persistence surface used by the server.
type Store interface {
	UserStore
	PasskeyStore
	BoardStore
	LibraryStore
	ChatStore
	Ping(ctx context.Context) error
	Close() error
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
