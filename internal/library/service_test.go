// ABOUTME: Tests for folder operations against a real SQLite store
// ABOUTME: Covers default seeding, creation order and slug collisions

package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorale/internal/store"
)

func setupFolders(t *testing.T) (*Folders, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := NewFolders(s)
	f.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return f, s
}

func strPtr(s string) *string { return &s }

func TestFolders_ListSeedsDefaults(t *testing.T) {
	f, _ := setupFolders(t)
	ctx := context.Background()

	folders, err := f.List(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 6)
	assert.Equal(t, SlugChoir, folders[0].Slug)

	again, err := f.List(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 6)
}

func TestFolders_Create(t *testing.T) {
	f, _ := setupFolders(t)
	ctx := context.Background()

	folder, err := f.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, NewFolderName, folder.Name)
	assert.Equal(t, 6, folder.SortOrder)
	assert.Contains(t, folder.Slug, "folder-1700000000000-")

	next, err := f.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, next.SortOrder)
}

func TestFolders_UpdateDerivesSlug(t *testing.T) {
	f, _ := setupFolders(t)
	ctx := context.Background()

	folder, err := f.Create(ctx)
	require.NoError(t, err)

	got, err := f.Update(ctx, folder.ID, FolderChange{Name: strPtr("Spring Concert")})
	require.NoError(t, err)
	assert.Equal(t, "Spring Concert", got.Name)
	assert.Equal(t, "spring-concert", got.Slug)

	got, err = f.Update(ctx, folder.ID, FolderChange{Name: strPtr("봄 연주회")})
	require.NoError(t, err)
	assert.Equal(t, "folder-"+folder.ID[len(folder.ID)-8:], got.Slug)

	got, err = f.Update(ctx, folder.ID, FolderChange{Slug: strPtr("!!!")})
	require.NoError(t, err)
	assert.Equal(t, "folder-"+folder.ID[len(folder.ID)-8:], got.Slug, "empty normalized slug is ignored")
}

func TestFolders_UpdateSlugCollision(t *testing.T) {
	f, _ := setupFolders(t)
	ctx := context.Background()

	folder, err := f.Create(ctx)
	require.NoError(t, err)

	got, err := f.Update(ctx, folder.ID, FolderChange{Slug: strPtr("Choir")})
	require.NoError(t, err)
	assert.Equal(t, CollisionSlug(folder.ID, time.UnixMilli(1700000000000)), got.Slug)

	order := 0
	got, err = f.Update(ctx, folder.ID, FolderChange{SortOrder: &order})
	require.NoError(t, err)
	assert.Equal(t, 0, got.SortOrder)
}

func TestFolders_UpdateAndDeleteErrors(t *testing.T) {
	f, s := setupFolders(t)
	ctx := context.Background()

	_, err := f.Update(ctx, "missing", FolderChange{Name: strPtr("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)

	folder, err := f.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.CreateSheetMusic(ctx, &store.SheetMusic{Title: "a", Filepath: "/a.pdf", FolderID: folder.ID}))

	assert.ErrorIs(t, f.Delete(ctx, folder.ID), store.ErrFolderNotEmpty)
	assert.ErrorIs(t, f.Delete(ctx, "missing"), store.ErrNotFound)
}
