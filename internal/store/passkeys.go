// ABOUTME: WebAuthn passkey credentials owned by members
// ABOUTME: Supports registration, discoverable login lookup and sign count updates

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Passkey represents a stored WebAuthn credential
type Passkey struct {
	ID              string
	UserID          string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      string // JSON array
	SignCount       uint32
	CreatedAt       time.Time
}

// PasskeyStore manages WebAuthn credentials
type PasskeyStore interface {
	CreatePasskey(ctx context.Context, p *Passkey) error
	ListPasskeysByUser(ctx context.Context, userID string) ([]*Passkey, error)
	GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (*Passkey, error)
	UpdatePasskeySignCount(ctx context.Context, id string, signCount uint32) error
}

var _ PasskeyStore = (*SQLiteStore)(nil)

// CreatePasskey stores a new credential. Returns ErrConflict if the credential ID is known.
func (s *SQLiteStore) CreatePasskey(ctx context.Context, p *Passkey) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Transports == "" {
		p.Transports = "[]"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passkeys (id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.CredentialID, p.PublicKey, p.AttestationType, p.Transports, p.SignCount, formatTime(p.CreatedAt))
	if isConstraintViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting passkey: %w", err)
	}
	return nil
}

func scanPasskey(row scanner) (*Passkey, error) {
	var p Passkey
	var createdAt string
	if err := row.Scan(&p.ID, &p.UserID, &p.CredentialID, &p.PublicKey, &p.AttestationType, &p.Transports, &p.SignCount, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &p, nil
}

const passkeyColumns = `id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at`

// ListPasskeysByUser returns all credentials registered by a user.
func (s *SQLiteStore) ListPasskeysByUser(ctx context.Context, userID string) ([]*Passkey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+passkeyColumns+` FROM passkeys WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying passkeys: %w", err)
	}
	defer rows.Close()

	var keys []*Passkey
	for rows.Next() {
		p, err := scanPasskey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning passkey: %w", err)
		}
		keys = append(keys, p)
	}
	return keys, rows.Err()
}

// GetPasskeyByCredentialID looks up a credential by its authenticator-assigned ID.
func (s *SQLiteStore) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (*Passkey, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+passkeyColumns+` FROM passkeys WHERE credential_id = ?`, credentialID)
	p, err := scanPasskey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying passkey: %w", err)
	}
	return p, nil
}

// UpdatePasskeySignCount records the authenticator's latest signature counter.
func (s *SQLiteStore) UpdatePasskeySignCount(ctx context.Context, id string, signCount uint32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE passkeys SET sign_count = ? WHERE id = ?`, signCount, id)
	if err != nil {
		return fmt.Errorf("updating sign count: %w", err)
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
