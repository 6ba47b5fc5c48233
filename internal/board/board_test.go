// ABOUTME: Tests for post and comment write paths with real storage
// ABOUTME: Covers placeholder resolution, validation, ownership and file cleanup

package board

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/store"
)

type fakePreparer struct {
	transcode bool
	calls     int
}

func (f *fakePreparer) Prepare(ctx context.Context, r io.Reader, mimeType string) (*media.Prepared, error) {
	f.calls++
	if !f.transcode {
		return &media.Prepared{Reader: r}, nil
	}
	return &media.Prepared{Reader: strings.NewReader("mp4"), Transcoded: true}, nil
}

type fixture struct {
	svc     *Service
	store   *store.SQLiteStore
	storage *media.LocalStorage
	prep    *fakePreparer
	author  *store.User
	other   *store.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	storage, err := media.NewLocalStorage(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	prep := &fakePreparer{}
	svc := NewService(s, storage, prep, nil)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ctx := context.Background()
	author := &store.User{Email: "author@example.com", Name: "Author", Status: store.UserStatusApproved}
	other := &store.User{Email: "other@example.com", Name: "Other", Status: store.UserStatusApproved}
	require.NoError(t, s.CreateUser(ctx, author))
	require.NoError(t, s.CreateUser(ctx, other))

	return &fixture{svc: svc, store: s, storage: storage, prep: prep, author: author, other: other}
}

func (f *fixture) exists(t *testing.T, publicPath string) bool {
	t.Helper()
	key, ok := f.storage.KeyFromPath(publicPath)
	require.True(t, ok)
	_, err := os.Stat(filepath.Join(f.storage.Root(), filepath.FromSlash(key)))
	return err == nil
}

func (f *fixture) countFiles(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.Walk(f.storage.Root(), func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return err
	})
	require.NoError(t, err)
	return n
}

func png(name string) media.Upload {
	return media.FromBytes(name, "image/png", []byte("png-"+name))
}

func TestCreatePost_ResolvesPlaceholders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	body := `<p><img src="{{INLINE_1}}"><img src="{{INLINE_0}}"><img src="{{INLINE_0}}"></p>`
	post, err := f.svc.CreatePost(ctx, f.author.ID, " Concert ", body, []media.Upload{png("a.png"), png("b.png")})
	require.NoError(t, err)

	assert.Equal(t, "Concert", post.Title)
	require.Len(t, post.Attachments, 2)
	first, second := post.Attachments[0], post.Attachments[1]
	assert.Less(t, first.ID, second.ID)

	want := `<p><img src="` + second.Filepath + `"><img src="` + first.Filepath + `"><img src="` + first.Filepath + `"></p>`
	assert.Equal(t, want, post.Content)
	assert.NotContains(t, post.Content, "{{INLINE_")

	assert.True(t, strings.HasPrefix(first.Filepath, "/uploads/attachments/"+post.ID+"/1700000000000-0-a.png"))
	assert.Equal(t, "image/png", first.FileType)
	assert.Equal(t, int64(len("png-a.png")), first.FileSize)
	assert.True(t, f.exists(t, first.Filepath))
}

func TestCreatePost_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		title string
		body  string
		files []media.Upload
	}{
		{"missing title", "  ", "hello", nil},
		{"no content or files", "t", "  ", nil},
		{"only empty files", "t", "", []media.Upload{media.FromBytes("e.png", "image/png", nil)}},
		{"placeholder without files", "t", `<img src="{{INLINE_0}}">`, nil},
		{"placeholder beyond files", "t", `<img src="{{INLINE_2}}">`, []media.Upload{png("a.png")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePost(ctx, f.author.ID, tt.title, tt.body, tt.files)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.countFiles(t), "nothing is written for rejected submissions")
}

func TestCreatePost_PastedImageNames(t *testing.T) {
	f := setup(t)
	post, err := f.svc.CreatePost(context.Background(), f.author.ID, "t", "", []media.Upload{
		media.FromBytes("", "", []byte("x")),
	})
	require.NoError(t, err)
	require.Len(t, post.Attachments, 1)
	att := post.Attachments[0]
	assert.Equal(t, "pasted-0.png", att.Filename)
	assert.Equal(t, "image/png", att.FileType)
	assert.True(t, strings.HasSuffix(att.Filepath, "/1700000000000-0-pasted-1700000000000.png"))
}

func TestUploads_ScriptableNamesStoredAsImages(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, f.author.ID, "t", "", []media.Upload{
		media.FromBytes("evil.html", "text/html", []byte("<script>alert(1)</script>")),
	})
	require.NoError(t, err)
	require.Len(t, post.Attachments, 1)
	assert.True(t, strings.HasSuffix(post.Attachments[0].Filepath, "/1700000000000-0-evil.png"))

	c, err := f.svc.CreateComment(ctx, f.other.ID, Target{PostID: post.ID}, "", []media.Upload{
		media.FromBytes("a.html", "image/html", []byte("<script>alert(1)</script>")),
		media.FromBytes("b.svg", "image/svg+xml", []byte("<svg onload=alert(1)>")),
	})
	require.NoError(t, err)
	require.Len(t, c.Attachments, 2)
	assert.True(t, strings.HasSuffix(c.Attachments[0].Filepath, "-0-a.png"))
	assert.True(t, strings.HasSuffix(c.Attachments[1].Filepath, "-1-b.png"))
}

func TestUpdatePost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, f.author.ID, "t", `<img src="{{INLINE_0}}">`, []media.Upload{png("a.png")})
	require.NoError(t, err)

	_, err = f.svc.UpdatePost(ctx, Actor{ID: f.other.ID, Admin: true}, post.ID, "x", "y", nil)
	assert.ErrorIs(t, err, ErrForbidden, "admins cannot edit other people's posts")

	_, err = f.svc.UpdatePost(ctx, Actor{ID: f.author.ID}, "missing", "x", "y", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	body := post.Content + `<img src="{{INLINE_0}}">`
	updated, err := f.svc.UpdatePost(ctx, Actor{ID: f.author.ID}, post.ID, "t2", body, []media.Upload{png("b.png")})
	require.NoError(t, err)
	require.Len(t, updated.Attachments, 2)
	added := updated.Attachments[1]
	assert.Equal(t, "b.png", added.Filename)
	assert.Equal(t, post.Content+`<img src="`+added.Filepath+`">`, updated.Content)
}

func TestDeletePost_RemovesFiles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, f.author.ID, "t", "", []media.Upload{png("a.png")})
	require.NoError(t, err)
	_, err = f.svc.CreateComment(ctx, f.other.ID, Target{PostID: post.ID}, "", []media.Upload{png("c.png")})
	require.NoError(t, err)
	require.Equal(t, 2, f.countFiles(t))

	assert.ErrorIs(t, f.svc.DeletePost(ctx, Actor{ID: f.other.ID}, post.ID), ErrForbidden)
	require.NoError(t, f.svc.DeletePost(ctx, Actor{ID: f.author.ID}, post.ID))
	assert.Equal(t, 0, f.countFiles(t))

	_, err = f.svc.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestToggleFlags(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, f.author.ID, "t", "body", nil)
	require.NoError(t, err)

	_, err = f.svc.ToggleNotice(ctx, Actor{ID: f.author.ID}, post.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	admin := Actor{ID: f.other.ID, Admin: true}
	got, err := f.svc.ToggleNotice(ctx, admin, post.ID)
	require.NoError(t, err)
	assert.True(t, got.IsNotice)

	got, err = f.svc.ToggleFixed(ctx, admin, post.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFixed)

	_, err = f.svc.ToggleFixed(ctx, admin, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateComment_NamingAndTranscode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, f.author.ID, "t", "body", nil)
	require.NoError(t, err)

	f.prep.transcode = true
	c, err := f.svc.CreateComment(ctx, f.other.ID, Target{PostID: post.ID},
		`<video src="{{INLINE_1}}"></video><img src="{{INLINE_0}}">`,
		[]media.Upload{
			media.FromBytes("my photo.jpg", "image/jpeg", []byte("jpg")),
			media.FromBytes("clip.mov", "video/quicktime", []byte("mov")),
		})
	require.NoError(t, err)
	assert.Equal(t, 1, f.prep.calls, "only videos go through the transcoder")

	require.Len(t, c.Attachments, 2)
	img, vid := c.Attachments[0], c.Attachments[1]
	assert.True(t, strings.HasSuffix(img.Filepath, "/comments/"+c.ID+"/1700000000000-0-my_photo.jpeg"))
	assert.True(t, strings.HasSuffix(vid.Filepath, "/1700000000000-1-clip.mp4"))
	assert.Equal(t, "video/mp4", vid.FileType)
	assert.Equal(t, `<video src="`+vid.Filepath+`"></video><img src="`+img.Filepath+`">`, c.Content)
}

func TestCreateComment_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateComment(ctx, f.author.ID, Target{PostID: "p"}, " ", nil)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = f.svc.CreateComment(ctx, f.author.ID, Target{}, "hi", nil)
	assert.True(t, errors.As(err, &verr))

	_, err = f.svc.CreateComment(ctx, f.author.ID, Target{PostID: "missing"}, "hi", []media.Upload{png("a.png")})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, f.countFiles(t), "files are removed when the target is missing")
}

func TestUpdateAndDeleteComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, f.author.ID, "t", "body", nil)
	require.NoError(t, err)
	c, err := f.svc.CreateComment(ctx, f.author.ID, Target{PostID: post.ID}, "first", nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateComment(ctx, Actor{ID: f.other.ID}, c.ID, "hijack", nil)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.UpdateComment(ctx, Actor{ID: f.other.ID, Admin: true}, c.ID, "moderated", nil)
	require.NoError(t, err)
	assert.Equal(t, "moderated", got.Content)

	_, err = f.svc.UpdateComment(ctx, Actor{ID: f.author.ID}, "missing", "x", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, f.svc.DeleteComment(ctx, Actor{ID: f.other.ID}, c.ID), ErrForbidden)
	require.NoError(t, f.svc.DeleteComment(ctx, Actor{ID: f.author.ID}, c.ID))

	thread, err := f.svc.ListComments(ctx, Target{PostID: post.ID})
	require.NoError(t, err)
	assert.Empty(t, thread)

	_, err = f.svc.ListComments(ctx, Target{})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
