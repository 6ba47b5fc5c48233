// ABOUTME: Community chat messages with cursor pagination
// ABOUTME: Pages walk backwards from a cursor and are returned oldest first

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ChatMessage is one line in the shared chat room.
type ChatMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	Sender    Author    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatStore manages chat messages
type ChatStore interface {
	CreateChatMessage(ctx context.Context, m *ChatMessage) error
	// ListChatMessages returns up to limit messages older than the message
	// with ID before (or the newest, when before is empty), oldest first.
	// An unknown cursor yields an empty page.
	ListChatMessages(ctx context.Context, before string, limit int) ([]ChatMessage, error)
}

var _ ChatStore = (*SQLiteStore)(nil)

// CreateChatMessage stores a message and fills in the sender projection.
func (s *SQLiteStore) CreateChatMessage(ctx context.Context, m *ChatMessage) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, content, sender_id, created_at) VALUES (?, ?, ?, ?)
	`, m.ID, m.Content, m.SenderID, formatTime(m.CreatedAt))
	if isConstraintViolation(err) {
		return ErrNotFound // unknown sender
	}
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}

	var image sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT name, image FROM users WHERE id = ?`, m.SenderID).Scan(&m.Sender.Name, &image)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("loading sender: %w", err)
	}
	m.Sender.ID = m.SenderID
	m.Sender.Image = image.String
	return nil
}

// ListChatMessages implements ChatStore.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, before string, limit int) ([]ChatMessage, error) {
	query := `
		SELECT c.id, c.content, c.sender_id, u.name, u.image, c.created_at
		FROM chat_messages c
		JOIN users u ON u.id = c.sender_id`
	var args []any
	if before != "" {
		var cursorAt string
		err := s.db.QueryRowContext(ctx, `SELECT created_at FROM chat_messages WHERE id = ?`, before).Scan(&cursorAt)
		if errors.Is(err, sql.ErrNoRows) {
			return []ChatMessage{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("querying chat cursor: %w", err)
		}
		query += ` WHERE (c.created_at < ? OR (c.created_at = ? AND c.id < ?))`
		args = append(args, cursorAt, cursorAt, before)
	}
	query += ` ORDER BY c.created_at DESC, c.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chat messages: %w", err)
	}
	defer rows.Close()

	msgs := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		var image sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Content, &m.SenderID, &m.Sender.Name, &image, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		m.Sender.ID = m.SenderID
		m.Sender.Image = image.String
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat messages: %w", err)
	}

	// newest-first from the query; callers display oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
