// ABOUTME: Comment creation, editing and deletion on posts or sheet music
// ABOUTME: Authors and admins may edit or delete a comment

package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/store"
)

// Target identifies what a comment thread belongs to. Exactly one field is set.
type Target struct {
	PostID       string
	SheetMusicID string
}

func (t Target) valid() bool {
	return (t.PostID == "") != (t.SheetMusicID == "")
}

// CreateComment stores a comment with its attachments on the target.
func (s *Service) CreateComment(ctx context.Context, authorID string, target Target, body string, files []media.Upload) (*store.Comment, error) {
	body = strings.TrimSpace(body)
	files = media.NonEmpty(files)

	if body == "" && len(files) == 0 {
		return nil, invalid("write some content or attach a file")
	}
	if !target.valid() {
		return nil, invalid("a comment needs exactly one of postId or sheetMusicId")
	}
	if err := precheck(body, files); err != nil {
		return nil, err
	}

	commentID := store.NewID()
	atts, err := s.saveAttachments(ctx, "comments/"+commentID, files, s.saveCommentFile)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolve(ctx, body, atts)
	if err != nil {
		return nil, err
	}

	c := &store.Comment{
		ID:           commentID,
		Content:      resolved,
		AuthorID:     authorID,
		PostID:       target.PostID,
		SheetMusicID: target.SheetMusicID,
		Attachments:  atts,
	}
	if err := s.store.CreateComment(ctx, c); err != nil {
		s.discard(ctx, atts)
		return nil, err
	}
	return s.store.GetComment(ctx, commentID)
}

// UpdateComment replaces the content and appends new files.
func (s *Service) UpdateComment(ctx context.Context, actor Actor, id, body string, files []media.Upload) (*store.Comment, error) {
	body = strings.TrimSpace(body)
	files = media.NonEmpty(files)
	if body == "" && len(files) == 0 {
		return nil, invalid("missing content")
	}

	c, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.AuthorID != actor.ID && !actor.Admin {
		return nil, ErrForbidden
	}
	if err := precheck(body, files); err != nil {
		return nil, err
	}

	atts, err := s.saveAttachments(ctx, "comments/"+id, files, s.saveCommentFile)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolve(ctx, body, atts)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateComment(ctx, id, resolved, atts); err != nil {
		s.discard(ctx, atts)
		return nil, fmt.Errorf("updating comment: %w", err)
	}
	return s.store.GetComment(ctx, id)
}

// DeleteComment removes a comment and its stored files.
func (s *Service) DeleteComment(ctx context.Context, actor Actor, id string) error {
	c, err := s.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if c.AuthorID != actor.ID && !actor.Admin {
		return ErrForbidden
	}
	if err := s.store.DeleteComment(ctx, id); err != nil {
		return err
	}
	s.discard(ctx, c.Attachments)
	return nil
}

// ListComments returns a target's thread oldest first.
func (s *Service) ListComments(ctx context.Context, target Target) ([]store.Comment, error) {
	if !target.valid() {
		return nil, invalid("postId or sheetMusicId is required")
	}
	return s.store.ListComments(ctx, store.CommentFilter{PostID: target.PostID, SheetMusicID: target.SheetMusicID})
}
