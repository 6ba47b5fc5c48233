// ABOUTME: Stores submitted files as attachment records
// ABOUTME: Post and comment uploads use different naming and only comments transcode

package board

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/2389/chorale/internal/content"
	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/store"
)

// precheck rejects content whose placeholders cannot all be filled by the
// submitted files, before anything is written.
func precheck(html string, files []media.Upload) error {
	if content.HasPlaceholders(html) && len(files) == 0 {
		return invalid("inline media did not reach the server, please try again")
	}
	if idx := content.MaxPlaceholderIndex(html); idx >= len(files) {
		return invalid(fmt.Sprintf("inline media %d has no matching file", idx))
	}
	return nil
}

// saveFunc stores the i-th file of a submission.
type saveFunc func(ctx context.Context, dir string, i int, f media.Upload, now time.Time) (store.Attachment, error)

// saveAttachments stores each file under dir and returns the attachment
// records with fresh IDs. On error, files written so far are removed.
func (s *Service) saveAttachments(ctx context.Context, dir string, files []media.Upload, save saveFunc) ([]store.Attachment, error) {
	now := s.now()
	atts := make([]store.Attachment, 0, len(files))
	for i, f := range files {
		att, err := save(ctx, dir, i, f, now)
		if err != nil {
			s.discard(ctx, atts)
			return nil, err
		}
		atts = append(atts, att)
	}
	return atts, nil
}

func uploadMIME(f media.Upload) string {
	if f.ContentType == "" {
		return "image/png"
	}
	return f.ContentType
}

// savePostFile stores a post attachment as {ms}-{i}-{safe original name}.
func (s *Service) savePostFile(ctx context.Context, dir string, i int, f media.Upload, now time.Time) (store.Attachment, error) {
	mimeType := uploadMIME(f)
	ext := media.ExtForMIME(mimeType)
	name := strings.TrimSpace(f.Filename)
	stored := media.StorableName(name, ext)
	if name == "" {
		stored = "pasted-" + media.Millis(now) + "." + ext
	}
	key := fmt.Sprintf("%s/%s-%d-%s", dir, media.Millis(now), i, media.SafeName(stored))

	body, err := f.Open()
	if err != nil {
		return store.Attachment{}, fmt.Errorf("opening upload %d: %w", i, err)
	}
	defer body.Close()

	return s.put(ctx, key, body, orDefault(name, fmt.Sprintf("pasted-%d.%s", i, ext)), mimeType)
}

// saveCommentFile stores a comment attachment as {ms}-{i}-{stem}.{ext},
// transcoding videos to MP4 when possible.
func (s *Service) saveCommentFile(ctx context.Context, dir string, i int, f media.Upload, now time.Time) (store.Attachment, error) {
	mimeType := uploadMIME(f)
	name := strings.TrimSpace(f.Filename)

	body, err := f.Open()
	if err != nil {
		return store.Attachment{}, fmt.Errorf("opening upload %d: %w", i, err)
	}
	defer body.Close()

	var r io.Reader = body
	if s.transcoder != nil && media.IsVideo(mimeType) {
		prepared, err := s.transcoder.Prepare(ctx, body, mimeType)
		if err != nil {
			return store.Attachment{}, fmt.Errorf("preparing upload %d: %w", i, err)
		}
		defer prepared.Close()
		if prepared.Transcoded {
			mimeType = "video/mp4"
		}
		r = prepared
	}

	ext := media.ExtForMIME(mimeType)
	key := fmt.Sprintf("%s/%s-%d-%s.%s", dir, media.Millis(now), i, media.Stem(name, now), ext)
	return s.put(ctx, key, r, orDefault(name, fmt.Sprintf("pasted-%d.%s", i, ext)), mimeType)
}

func (s *Service) put(ctx context.Context, key string, r io.Reader, filename, mimeType string) (store.Attachment, error) {
	filepath, size, err := s.storage.Save(ctx, key, r)
	if err != nil {
		return store.Attachment{}, fmt.Errorf("storing %s: %w", key, err)
	}
	return store.Attachment{
		ID:       store.NewID(),
		Filename: filename,
		Filepath: filepath,
		FileType: mimeType,
		FileSize: size,
	}, nil
}

// discard removes stored files for attachments that will not be persisted.
func (s *Service) discard(ctx context.Context, atts []store.Attachment) {
	paths := make([]string, len(atts))
	for i, a := range atts {
		paths[i] = a.Filepath
	}
	media.RemovePaths(ctx, s.storage, paths)
}

// resolve fills placeholders from freshly stored attachments, removing the
// files again if the content cannot be resolved.
func (s *Service) resolve(ctx context.Context, html string, atts []store.Attachment) (string, error) {
	resolved, err := content.Resolve(html, atts)
	if err != nil {
		s.discard(ctx, atts)
		return "", &ValidationError{Msg: "inline media could not be matched to uploaded files", Err: err}
	}
	return resolved, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
