// ABOUTME: Board posts with their file attachments
// ABOUTME: Posts and attachments are written together in one transaction

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Author is the public projection of a user shown next to content.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Attachment is a stored file belonging to a post or comment.
type Attachment struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Filepath  string    `json:"filepath"`
	FileType  string    `json:"fileType"`
	FileSize  int64     `json:"fileSize"`
	CreatedAt time.Time `json:"createdAt"`
}

// Post is a board entry.
type Post struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	AuthorID    string       `json:"authorId"`
	Author      Author       `json:"author"`
	IsNotice    bool         `json:"isNotice"`
	IsFixed     bool         `json:"isFixed"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PostFilter narrows ListPosts.
type PostFilter struct {
	// Query matches title or content as a case-insensitive substring.
	Query string
}

// PostFlag names a boolean post column that admins can toggle.
type PostFlag string

const (
	PostFlagNotice PostFlag = "is_notice"
	PostFlagFixed  PostFlag = "is_fixed"
)

// BoardStore manages posts, comments and their attachments
type BoardStore interface {
	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]Post, error)
	UpdatePost(ctx context.Context, id, title, content string, added []Attachment) error
	DeletePost(ctx context.Context, id string) error
	TogglePostFlag(ctx context.Context, id string, flag PostFlag) (*Post, error)

	CreateComment(ctx context.Context, c *Comment) error
	GetComment(ctx context.Context, id string) (*Comment, error)
	ListComments(ctx context.Context, filter CommentFilter) ([]Comment, error)
	UpdateComment(ctx context.Context, id, content string, added []Attachment) error
	DeleteComment(ctx context.Context, id string) error
}

var _ BoardStore = (*SQLiteStore)(nil)

func insertAttachments(ctx context.Context, tx *sql.Tx, table, ownerColumn, ownerID string, atts []Attachment) error {
	query := `INSERT INTO ` + table + ` (id, ` + ownerColumn + `, filename, filepath, file_type, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i := range atts {
		a := &atts[i]
		if a.ID == "" {
			a.ID = NewID()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query, a.ID, ownerID, a.Filename, a.Filepath, a.FileType, a.FileSize, formatTime(a.CreatedAt)); err != nil {
			return fmt.Errorf("inserting attachment: %w", err)
		}
	}
	return nil
}

// listAttachments loads attachments for the given owners, keyed by owner ID.
// Attachments are ordered by ID, the order placeholders resolve against.
func (s *SQLiteStore) listAttachments(ctx context.Context, table, ownerColumn string, ownerIDs []string) (map[string][]Attachment, error) {
	result := make(map[string][]Attachment, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(ownerIDs))
	for i, id := range ownerIDs {
		args[i] = id
	}
	query := `SELECT ` + ownerColumn + `, id, filename, filepath, file_type, file_size, created_at
		FROM ` + table + ` WHERE ` + ownerColumn + ` IN (` + placeholders(len(ownerIDs)) + `) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID, createdAt string
		var a Attachment
		if err := rows.Scan(&ownerID, &a.ID, &a.Filename, &a.Filepath, &a.FileType, &a.FileSize, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		result[ownerID] = append(result[ownerID], a)
	}
	return result, rows.Err()
}

// CreatePost inserts a post and its attachments atomically.
func (s *SQLiteStore) CreatePost(ctx context.Context, p *Post) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, title, content, author_id, is_notice, is_fixed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Title, p.Content, p.AuthorID, boolToInt(p.IsNotice), boolToInt(p.IsFixed),
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting post: %w", err)
		}
		return insertAttachments(ctx, tx, "post_attachments", "post_id", p.ID, p.Attachments)
	})
}

const postSelect = `
	SELECT p.id, p.title, p.content, p.author_id, u.name, u.image, p.is_notice, p.is_fixed, p.created_at, p.updated_at
	FROM posts p
	JOIN users u ON u.id = p.author_id`

func scanPost(row scanner) (*Post, error) {
	var p Post
	var image sql.NullString
	var notice, fixed int
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &p.Author.Name, &image, &notice, &fixed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Author.ID = p.AuthorID
	p.Author.Image = image.String
	p.IsNotice = notice != 0
	p.IsFixed = fixed != 0

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	p.Attachments = []Attachment{}
	return &p, nil
}

// GetPost retrieves a post with its author and attachments.
// Returns ErrNotFound if the post doesn't exist.
func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, postSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying post: %w", err)
	}

	atts, err := s.listAttachments(ctx, "post_attachments", "post_id", []string{id})
	if err != nil {
		return nil, err
	}
	if a, ok := atts[id]; ok {
		p.Attachments = a
	}
	return p, nil
}

// ListPosts returns posts with fixed posts first, then notices, then newest first.
func (s *SQLiteStore) ListPosts(ctx context.Context, filter PostFilter) ([]Post, error) {
	query := postSelect
	var args []any
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		query += ` WHERE lower(p.title) LIKE ? ESCAPE '\' OR lower(p.content) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY p.is_fixed DESC, p.is_notice DESC, p.created_at DESC, p.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	var ids []string
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}
	rows.Close()

	atts, err := s.listAttachments(ctx, "post_attachments", "post_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if a, ok := atts[posts[i].ID]; ok {
			posts[i].Attachments = a
		}
	}
	return posts, nil
}

// UpdatePost replaces title and content and appends new attachments.
func (s *SQLiteStore) UpdatePost(ctx context.Context, id, title, content string, added []Attachment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE posts SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
			title, content, formatTime(time.Now()), id)
		if err != nil {
			return fmt.Errorf("updating post: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return insertAttachments(ctx, tx, "post_attachments", "post_id", id, added)
	})
}

// DeletePost removes a post. Attachments and comments cascade.
func (s *SQLiteStore) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
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

// TogglePostFlag flips a boolean flag and returns the updated post.
func (s *SQLiteStore) TogglePostFlag(ctx context.Context, id string, flag PostFlag) (*Post, error) {
	switch flag {
	case PostFlagNotice, PostFlagFixed:
	default:
		return nil, fmt.Errorf("unknown post flag %q", flag)
	}

	col := string(flag)
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET `+col+` = 1 - `+col+`, updated_at = ? WHERE id = ?`, formatTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("toggling %s: %w", col, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetPost(ctx, id)
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
