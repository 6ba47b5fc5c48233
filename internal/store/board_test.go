// ABOUTME: Tests for posts, comments and their attachments
// ABOUTME: Covers ordering, search, flag toggles and attachment ID ordering

package store

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_CreateAndGetPost(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, store, "a@example.com", UserStatusApproved, RoleMember)

	post := &Post{
		Title:    "Rehearsal",
		Content:  `<p><img src="{{INLINE_0}}"></p>`,
		AuthorID: author.ID,
		Attachments: []Attachment{
			{Filename: "a.png", Filepath: "/uploads/attachments/x/a.png", FileType: "image/png", FileSize: 10},
			{Filename: "b.png", Filepath: "/uploads/attachments/x/b.png", FileType: "image/png", FileSize: 20},
		},
	}
	require.NoError(t, store.CreatePost(ctx, post))

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rehearsal", got.Title)
	assert.Equal(t, author.Name, got.Author.Name)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "a.png", got.Attachments[0].Filename)

	ids := []string{got.Attachments[0].ID, got.Attachments[1].ID}
	assert.True(t, sort.StringsAreSorted(ids), "attachments come back in ID order")
}

func TestBoard_GetPost_NotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.GetPost(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoard_ListPosts_Ordering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, store, "a@example.com", UserStatusApproved, RoleMember)

	plain := &Post{Title: "plain", AuthorID: author.ID}
	notice := &Post{Title: "notice", AuthorID: author.ID, IsNotice: true}
	fixed := &Post{Title: "fixed", AuthorID: author.ID, IsFixed: true}
	newer := &Post{Title: "newer", AuthorID: author.ID}
	for _, p := range []*Post{fixed, notice, plain, newer} {
		require.NoError(t, store.CreatePost(ctx, p))
	}

	posts, err := store.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 4)
	var titles []string
	for _, p := range posts {
		titles = append(titles, p.Title)
	}
	assert.Equal(t, []string{"fixed", "notice", "newer", "plain"}, titles)
}

func TestBoard_ListPosts_Search(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, store, "a@example.com", UserStatusApproved, RoleMember)

	require.NoError(t, store.CreatePost(ctx, &Post{Title: "Spring Concert", AuthorID: author.ID}))
	require.NoError(t, store.CreatePost(ctx, &Post{Title: "Other", Content: "about the concert hall", AuthorID: author.ID}))
	require.NoError(t, store.CreatePost(ctx, &Post{Title: "100% sure", AuthorID: author.ID}))

	posts, err := store.ListPosts(ctx, PostFilter{Query: "CONCERT"})
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	posts, err = store.ListPosts(ctx, PostFilter{Query: "%"})
	require.NoError(t, err)
	require.Len(t, posts, 1, "wildcards match literally")
	assert.Equal(t, "100% sure", posts[0].Title)
}

func TestBoard_UpdatePost_AppendsAttachments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, store, "a@example.com", UserStatusApproved, RoleMember)

	post := &Post{Title: "t", AuthorID: author.ID, Attachments: []Attachment{{Filename: "1.png", Filepath: "/u/1", FileType: "image/png"}}}
	require.NoError(t, store.CreatePost(ctx, post))

	added := []Attachment{{Filename: "2.png", Filepath: "/u/2", FileType: "image/png"}}
	require.NoError(t, store.UpdatePost(ctx, post.ID, "t2", "body", added))

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Title)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "2.png", got.Attachments[1].Filename)

	assert.ErrorIs(t, store.UpdatePost(ctx, "missing", "x", "", nil), ErrNotFound)
}

func TestBoard_TogglePostFlag(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, store, "a@example.com", UserStatusApproved, RoleMember)
	post := &Post{Title: "t", AuthorID: author.ID}
	require.NoError(t, store.CreatePost(ctx, post))

	got, err := store.TogglePostFlag(ctx, post.ID, PostFlagNotice)
	require.NoError(t, err)
	assert.True(t, got.IsNotice)
	assert.False(t, got.IsFixed)

	got, err = store.TogglePostFlag(ctx, post.ID, PostFlagNotice)
	require.NoError(t, err)
	assert.False(t, got.IsNotice)

	_, err = store.TogglePostFlag(ctx, post.ID, PostFlag("title"))
	assert.Error(t, err)

	_, err = store.TogglePostFlag(ctx, "missing", PostFlagFixed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoard_DeletePost_Cascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, store, "a@example.com", UserStatusApproved, RoleMember)
	post := &Post{Title: "t", AuthorID: author.ID}
	require.NoError(t, store.CreatePost(ctx, post))
	comment := &Comment{Content: "hi", AuthorID: author.ID, PostID: post.ID}
	require.NoError(t, store.CreateComment(ctx, comment))

	require.NoError(t, store.DeletePost(ctx, post.ID))
	_, err := store.GetComment(ctx, comment.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeletePost(ctx, post.ID), ErrNotFound)
}

func TestBoard_Comments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, store, "a@example.com", UserStatusApproved, RoleMember)
	post := &Post{Title: "t", AuthorID: author.ID}
	require.NoError(t, store.CreatePost(ctx, post))

	first := &Comment{Content: "first", AuthorID: author.ID, PostID: post.ID,
		Attachments: []Attachment{{Filename: "f.jpg", Filepath: "/u/f", FileType: "image/jpeg", FileSize: 3}}}
	second := &Comment{Content: "second", AuthorID: author.ID, PostID: post.ID}
	require.NoError(t, store.CreateComment(ctx, first))
	require.NoError(t, store.CreateComment(ctx, second))

	comments, err := store.ListComments(ctx, CommentFilter{PostID: post.ID})
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Content)
	assert.Len(t, comments[0].Attachments, 1)
	assert.Empty(t, comments[1].Attachments)

	require.NoError(t, store.UpdateComment(ctx, second.ID, "edited", nil))
	got, err := store.GetComment(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)

	require.NoError(t, store.DeleteComment(ctx, first.ID))
	assert.ErrorIs(t, store.DeleteComment(ctx, first.ID), ErrNotFound)
}

func TestBoard_CreateComment_Validation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, store, "a@example.com", UserStatusApproved, RoleMember)

	err := store.CreateComment(ctx, &Comment{Content: "x", AuthorID: author.ID})
	assert.Error(t, err, "no target")

	err = store.CreateComment(ctx, &Comment{Content: "x", AuthorID: author.ID, PostID: "p", SheetMusicID: "s"})
	assert.Error(t, err, "two targets")

	err = store.CreateComment(ctx, &Comment{Content: "x", AuthorID: author.ID, PostID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.ListComments(ctx, CommentFilter{})
	assert.Error(t, err)
}
