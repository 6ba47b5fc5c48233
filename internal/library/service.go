// ABOUTME: Folder operations that combine the policy with persistence
// ABOUTME: Creating, renaming and deleting folders from the library page

package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/chorale/internal/store"
)

// FolderStore is the persistence surface the folder service needs.
type FolderStore interface {
	EnsureFolders(ctx context.Context, folders []store.Folder) error
	CreateFolder(ctx context.Context, f *store.Folder) error
	GetFolder(ctx context.Context, id string) (*store.Folder, error)
	ListFolders(ctx context.Context) ([]store.Folder, error)
	MaxFolderSortOrder(ctx context.Context) (int, error)
	UpdateFolder(ctx context.Context, id string, upd store.FolderUpdate) error
	DeleteFolder(ctx context.Context, id string) error
}

// Folders manages sheet music folders.
type Folders struct {
	store FolderStore
	now   func() time.Time
}

// NewFolders creates a folder service.
func NewFolders(s FolderStore) *Folders {
	return &Folders{store: s, now: time.Now}
}

// List ensures the default folders exist and returns all folders in order.
func (f *Folders) List(ctx context.Context) ([]store.Folder, error) {
	if err := f.store.EnsureFolders(ctx, DefaultFolders()); err != nil {
		return nil, err
	}
	return f.store.ListFolders(ctx)
}

// Create adds a new folder after the last one.
func (f *Folders) Create(ctx context.Context) (*store.Folder, error) {
	if err := f.store.EnsureFolders(ctx, DefaultFolders()); err != nil {
		return nil, err
	}
	maxOrder, err := f.store.MaxFolderSortOrder(ctx)
	if err != nil {
		return nil, err
	}
	folder := &store.Folder{
		Name:      NewFolderName,
		Slug:      NewFolderSlug(f.now()),
		SortOrder: maxOrder + 1,
	}
	if err := f.store.CreateFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}
	return folder, nil
}

// FolderChange is a requested folder edit. Nil fields stay unchanged.
type FolderChange struct {
	Name      *string
	Slug      *string
	SortOrder *int
}

// Update applies a change. A non-blank name also derives the slug; a slug
// that collides with another folder gets a unique suffix.
func (f *Folders) Update(ctx context.Context, id string, change FolderChange) (*store.Folder, error) {
	current, err := f.store.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}

	var upd store.FolderUpdate
	var slug string
	if change.Name != nil && strings.TrimSpace(*change.Name) != "" {
		name := strings.TrimSpace(*change.Name)
		upd.Name = &name
		slug = SlugFor(name, id)
	} else if change.Slug != nil {
		// an explicit slug that normalizes to nothing leaves the slug alone
		slug = NormalizeSlug(*change.Slug)
	}
	if slug != "" && slug != current.Slug {
		upd.Slug = &slug
	}
	if change.SortOrder != nil {
		upd.SortOrder = change.SortOrder
	}

	err = f.store.UpdateFolder(ctx, id, upd)
	if errors.Is(err, store.ErrConflict) && upd.Slug != nil {
		unique := CollisionSlug(id, f.now())
		upd.Slug = &unique
		err = f.store.UpdateFolder(ctx, id, upd)
	}
	if err != nil {
		return nil, err
	}
	return f.store.GetFolder(ctx, id)
}

// Delete removes an empty folder.
func (f *Folders) Delete(ctx context.Context, id string) error {
	return f.store.DeleteFolder(ctx, id)
}
