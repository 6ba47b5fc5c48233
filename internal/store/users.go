// ABOUTME: Member accounts: users, their status and role, and linked external identities
// ABOUTME: Includes the guarded delete that refuses to remove the last admin

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserStatus is the moderation state of a member
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusApproved UserStatus = "approved"
	UserStatusRejected UserStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusPending, UserStatusApproved, UserStatusRejected:
		return true
	}
	return false
}

// UserRole is the permission level of a member
type UserRole string

const (
	RoleMember UserRole = "member"
	RoleAdmin  UserRole = "admin"
)

// User is a member of the site.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email,omitempty"`
	Name         string     `json:"name"`
	Image        string     `json:"image,omitempty"`
	Status       UserStatus `json:"status"`
	Role         UserRole   `json:"role"`
	IntroMessage string     `json:"introMessage,omitempty"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserFilter narrows ListUsers and CountUsers. Nil fields match everything.
type UserFilter struct {
	Status *UserStatus
	Role   *UserRole
}

// Account links an external identity provider account to a user.
type Account struct {
	Provider          string
	ProviderAccountID string
	UserID            string
	CreatedAt         time.Time
}

// UserStore manages members and their linked accounts
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	CreateUserIfEmailAbsent(ctx context.Context, u *User) (*User, bool, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	CountUsers(ctx context.Context, filter UserFilter) (int, error)
	UpdateUserStatus(ctx context.Context, id string, status UserStatus) error
	UpdateUserRole(ctx context.Context, id string, role UserRole) error
	GrantAdmin(ctx context.Context, id string) error
	UpdateUserProfile(ctx context.Context, id, name, introMessage string) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	DeleteUserGuarded(ctx context.Context, id string) error
	LinkAccount(ctx context.Context, a *Account) error
	GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*User, error)
}

var _ UserStore = (*SQLiteStore)(nil)

const userColumns = `id, email, name, image, status, role, intro_message, password_hash, created_at, updated_at`

func scanUser(row scanner) (*User, error) {
	var u User
	var email, image, intro, hash sql.NullString
	var status, role, createdAt, updatedAt string

	if err := row.Scan(&u.ID, &email, &u.Name, &image, &status, &role, &intro, &hash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Image = image.String
	u.IntroMessage = intro.String
	u.PasswordHash = hash.String
	u.Status = UserStatus(status)
	u.Role = UserRole(role)

	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *SQLiteStore) prepareUser(u *User) {
	if u.ID == "" {
		u.ID = NewID()
	}
	u.Email = normalizeEmail(u.Email)
	if u.Status == "" {
		u.Status = UserStatusPending
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
}

// CreateUser inserts a new user. Returns ErrConflict if the email is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	s.prepareUser(u)

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, nullString(u.Email), u.Name, nullString(u.Image), string(u.Status), string(u.Role),
		nullString(u.IntroMessage), nullString(u.PasswordHash), formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if isConstraintViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// CreateUserIfEmailAbsent inserts u unless a user with the same email exists.
// It returns the stored user and whether it was created by this call.
func (s *SQLiteStore) CreateUserIfEmailAbsent(ctx context.Context, u *User) (*User, bool, error) {
	if normalizeEmail(u.Email) == "" {
		return nil, false, fmt.Errorf("email is required")
	}
	s.prepareUser(u)

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, nullString(u.Image), string(u.Status), string(u.Role),
		nullString(u.IntroMessage), nullString(u.PasswordHash), formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("upserting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 1 {
		return u, true, nil
	}

	existing, err := s.GetUserByEmail(ctx, u.Email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return u, nil
}

func userFilterClause(filter UserFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Role != nil {
		conds = append(conds, "role = ?")
		args = append(args, string(*filter.Role))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListUsers returns users matching the filter, newest first.
func (s *SQLiteStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	where, args := userFilterClause(filter)
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of users matching the filter.
func (s *SQLiteStore) CountUsers(ctx context.Context, filter UserFilter) (int, error) {
	where, args := userFilterClause(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) updateUser(ctx context.Context, id, set string, args ...any) error {
	args = append(args, formatTime(time.Now()), id)
	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
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

// UpdateUserStatus sets the moderation status of a user.
func (s *SQLiteStore) UpdateUserStatus(ctx context.Context, id string, status UserStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	return s.updateUser(ctx, id, "status = ?", string(status))
}

// UpdateUserRole sets the role of a user.
func (s *SQLiteStore) UpdateUserRole(ctx context.Context, id string, role UserRole) error {
	return s.updateUser(ctx, id, "role = ?", string(role))
}

// GrantAdmin makes the user an approved admin in one statement.
func (s *SQLiteStore) GrantAdmin(ctx context.Context, id string) error {
	return s.updateUser(ctx, id, "role = ?, status = ?", string(RoleAdmin), string(UserStatusApproved))
}

// UpdateUserProfile sets the display name and intro message. An empty intro clears it.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, id, name, introMessage string) error {
	return s.updateUser(ctx, id, "name = ?, intro_message = ?", name, nullString(introMessage))
}

// SetPasswordHash stores a bcrypt hash for credential login. Empty clears it.
func (s *SQLiteStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	return s.updateUser(ctx, id, "password_hash = ?", nullString(hash))
}

// DeleteUserGuarded deletes a user unless they are the only remaining admin.
// The admin count check and the delete run as a single statement.
// Returns ErrNotFound if the user doesn't exist and ErrLastAdmin if the guard refused.
func (s *SQLiteStore) DeleteUserGuarded(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM users
		WHERE id = ?
		  AND (role <> 'admin' OR (SELECT COUNT(*) FROM users WHERE role = 'admin') > 1)
	`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	return ErrLastAdmin
}

// LinkAccount records an external identity for a user. Linking the same
// provider account to the same user again is a no-op.
func (s *SQLiteStore) LinkAccount(ctx context.Context, a *Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (provider, provider_account_id, user_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, provider_account_id) DO NOTHING
	`, a.Provider, a.ProviderAccountID, a.UserID, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("linking account: %w", err)
	}
	return nil
}

// GetUserByAccount finds the user linked to an external identity.
func (s *SQLiteStore) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.image, u.status, u.role, u.intro_message, u.password_hash, u.created_at, u.updated_at
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE a.provider = ? AND a.provider_account_id = ?
	`, provider, providerAccountID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by account: %w", err)
	}
	return u, nil
}
