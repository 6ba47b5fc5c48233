// ABOUTME: Comments on posts or sheet music items, with their attachments
// ABOUTME: A comment targets exactly one of a post or a sheet music item

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Comment is a reply attached to a post or a sheet music item.
type Comment struct {
	ID           string       `json:"id"`
	Content      string       `json:"content"`
	AuthorID     string       `json:"authorId"`
	Author       Author       `json:"author"`
	PostID       string       `json:"postId,omitempty"`
	SheetMusicID string       `json:"sheetMusicId,omitempty"`
	Attachments  []Attachment `json:"attachments"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// CommentFilter selects the comment thread of one target.
type CommentFilter struct {
	PostID       string
	SheetMusicID string
}

// CreateComment inserts a comment and its attachments atomically.
// Returns ErrNotFound when the target post or sheet music item doesn't exist.
func (s *SQLiteStore) CreateComment(ctx context.Context, c *Comment) error {
	if (c.PostID == "") == (c.SheetMusicID == "") {
		return fmt.Errorf("comment needs exactly one of post or sheet music")
	}
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		var err error
		if c.PostID != "" {
			err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE id = ?`, c.PostID).Scan(&exists)
		} else {
			err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sheet_music WHERE id = ?`, c.SheetMusicID).Scan(&exists)
		}
		if err != nil {
			return fmt.Errorf("checking comment target: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO comments (id, content, author_id, post_id, sheet_music_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.Content, c.AuthorID, nullString(c.PostID), nullString(c.SheetMusicID),
			formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting comment: %w", err)
		}
		return insertAttachments(ctx, tx, "comment_attachments", "comment_id", c.ID, c.Attachments)
	})
}

const commentSelect = `
	SELECT c.id, c.content, c.author_id, u.name, u.image, c.post_id, c.sheet_music_id, c.created_at, c.updated_at
	FROM comments c
	JOIN users u ON u.id = c.author_id`

func scanComment(row scanner) (*Comment, error) {
	var c Comment
	var image, postID, sheetMusicID sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Content, &c.AuthorID, &c.Author.Name, &image, &postID, &sheetMusicID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Author.ID = c.AuthorID
	c.Author.Image = image.String
	c.PostID = postID.String
	c.SheetMusicID = sheetMusicID.String
	c.Attachments = []Attachment{}

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

// GetComment retrieves a comment with its author and attachments.
func (s *SQLiteStore) GetComment(ctx context.Context, id string) (*Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying comment: %w", err)
	}
	atts, err := s.listAttachments(ctx, "comment_attachments", "comment_id", []string{id})
	if err != nil {
		return nil, err
	}
	if a, ok := atts[id]; ok {
		c.Attachments = a
	}
	return c, nil
}

// ListComments returns the comments of one target, oldest first.
func (s *SQLiteStore) ListComments(ctx context.Context, filter CommentFilter) ([]Comment, error) {
	query := commentSelect
	var arg string
	switch {
	case filter.PostID != "":
		query += ` WHERE c.post_id = ?`
		arg = filter.PostID
	case filter.SheetMusicID != "":
		query += ` WHERE c.sheet_music_id = ?`
		arg = filter.SheetMusicID
	default:
		return nil, fmt.Errorf("comment filter needs a post or sheet music id")
	}
	query += ` ORDER BY c.created_at ASC, c.id ASC`

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	var ids []string
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, *c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}
	rows.Close()

	atts, err := s.listAttachments(ctx, "comment_attachments", "comment_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		if a, ok := atts[comments[i].ID]; ok {
			comments[i].Attachments = a
		}
	}
	return comments, nil
}

// UpdateComment replaces the content and appends new attachments.
func (s *SQLiteStore) UpdateComment(ctx context.Context, id, content string, added []Attachment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE comments SET content = ?, updated_at = ? WHERE id = ?`,
			content, formatTime(time.Now()), id)
		if err != nil {
			return fmt.Errorf("updating comment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return insertAttachments(ctx, tx, "comment_attachments", "comment_id", id, added)
	})
}

// DeleteComment removes a comment and its attachments.
func (s *SQLiteStore) DeleteComment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
