// ABOUTME: Post creation, editing, deletion and admin flag toggles
// ABOUTME: Only the author may edit or delete; admins toggle notice and fixed

package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/store"
)

// CreatePost stores a post and its attachments. Content placeholders are
// resolved against the uploaded files before the post is written.
func (s *Service) CreatePost(ctx context.Context, authorID, title, body string, files []media.Upload) (*store.Post, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	files = media.NonEmpty(files)

	if title == "" {
		return nil, invalid("title is required")
	}
	if body == "" && len(files) == 0 {
		return nil, invalid("write some content or attach a file")
	}
	if err := precheck(body, files); err != nil {
		return nil, err
	}

	postID := store.NewID()
	atts, err := s.saveAttachments(ctx, "attachments/"+postID, files, s.savePostFile)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolve(ctx, body, atts)
	if err != nil {
		return nil, err
	}

	post := &store.Post{
		ID:          postID,
		Title:       title,
		Content:     resolved,
		AuthorID:    authorID,
		Attachments: atts,
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		s.discard(ctx, atts)
		return nil, fmt.Errorf("creating post: %w", err)
	}
	s.logger.Info("post created", "post_id", postID, "user_id", authorID, "attachments", len(atts))
	return s.store.GetPost(ctx, postID)
}

// UpdatePost replaces title and content and appends new files. Placeholders
// in the new content refer to the newly added files only.
func (s *Service) UpdatePost(ctx context.Context, actor Actor, id, title, body string, files []media.Upload) (*store.Post, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actor.ID {
		return nil, ErrForbidden
	}

	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	files = media.NonEmpty(files)
	if title == "" {
		return nil, invalid("title is required")
	}
	if err := precheck(body, files); err != nil {
		return nil, err
	}

	atts, err := s.saveAttachments(ctx, "attachments/"+id, files, s.savePostFile)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolve(ctx, body, atts)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdatePost(ctx, id, title, resolved, atts); err != nil {
		s.discard(ctx, atts)
		return nil, err
	}
	return s.store.GetPost(ctx, id)
}

// DeletePost removes a post with its comments and attachments. Stored files
// are removed best-effort afterwards.
func (s *Service) DeletePost(ctx context.Context, actor Actor, id string) error {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.AuthorID != actor.ID {
		return ErrForbidden
	}

	comments, err := s.store.ListComments(ctx, store.CommentFilter{PostID: id})
	if err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, id); err != nil {
		return err
	}

	s.discard(ctx, post.Attachments)
	for _, c := range comments {
		s.discard(ctx, c.Attachments)
	}
	s.logger.Info("post deleted", "post_id", id, "user_id", actor.ID)
	return nil
}

// ToggleNotice flips the notice flag. Admin only.
func (s *Service) ToggleNotice(ctx context.Context, actor Actor, id string) (*store.Post, error) {
	return s.toggle(ctx, actor, id, store.PostFlagNotice)
}

// ToggleFixed flips the pinned flag. Admin only.
func (s *Service) ToggleFixed(ctx context.Context, actor Actor, id string) (*store.Post, error) {
	return s.toggle(ctx, actor, id, store.PostFlagFixed)
}

func (s *Service) toggle(ctx context.Context, actor Actor, id string, flag store.PostFlag) (*store.Post, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	post, err := s.store.TogglePostFlag(ctx, id, flag)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("toggling %s: %w", flag, err)
	}
	return post, nil
}

// ListPosts returns posts pinned first, then notices, then newest.
func (s *Service) ListPosts(ctx context.Context, query string) ([]store.Post, error) {
	return s.store.ListPosts(ctx, store.PostFilter{Query: strings.TrimSpace(query)})
}

// GetPost returns one post with author and attachments.
func (s *Service) GetPost(ctx context.Context, id string) (*store.Post, error) {
	return s.store.GetPost(ctx, id)
}
