// ABOUTME: Membership administration: approve, reject, promote, delete and claim
// ABOUTME: Guards keep at least one admin and stop admins deleting themselves

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/2389/chorale/internal/store"
)

// Membership errors
var (
	ErrUserNotFound = errors.New("user not found")
	ErrNotApproved  = errors.New("only approved members can be promoted")
	ErrAlreadyAdmin = errors.New("user is already an admin")
	ErrSelfDelete   = errors.New("cannot delete your own account")
	ErrLastAdmin    = errors.New("cannot delete the last admin")
	ErrAdminExists  = errors.New("an admin already exists")
	ErrNotPending   = errors.New("intro can only be edited while pending")
)

// Field limits for the pending intro form.
const (
	MaxIntroLength = 500
	MaxNameLength  = 30
)

// MemberStore defines the persistence operations membership administration needs
type MemberStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateUserIfEmailAbsent(ctx context.Context, u *store.User) (*store.User, bool, error)
	ListUsers(ctx context.Context, filter store.UserFilter) ([]store.User, error)
	CountUsers(ctx context.Context, filter store.UserFilter) (int, error)
	UpdateUserStatus(ctx context.Context, id string, status store.UserStatus) error
	UpdateUserRole(ctx context.Context, id string, role store.UserRole) error
	GrantAdmin(ctx context.Context, id string) error
	UpdateUserProfile(ctx context.Context, id, name, introMessage string) error
	DeleteUserGuarded(ctx context.Context, id string) error
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// Members administers member accounts.
type Members struct {
	store  MemberStore
	logger *slog.Logger
}

// NewMembers creates a membership service.
func NewMembers(s MemberStore, logger *slog.Logger) *Members {
	if logger == nil {
		logger = slog.Default()
	}
	return &Members{store: s, logger: logger.With("component", "admin")}
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// ListUsers returns members newest first, optionally narrowed to one status.
func (m *Members) ListUsers(ctx context.Context, status *store.UserStatus) ([]store.User, error) {
	users, err := m.store.ListUsers(ctx, store.UserFilter{Status: status})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Approve admits a member.
func (m *Members) Approve(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, store.UserStatusApproved)
}

// Reject denies a member.
func (m *Members) Reject(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, store.UserStatusRejected)
}

func (m *Members) setStatus(ctx context.Context, id string, status store.UserStatus) error {
	if err := m.store.UpdateUserStatus(ctx, id, status); err != nil {
		return notFound(err)
	}
	m.logger.Info("member status changed", "user_id", id, "status", status)
	return nil
}

// Promote grants the admin role to an approved member.
func (m *Members) Promote(ctx context.Context, id string) error {
	u, err := m.store.GetUser(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if u.Status != store.UserStatusApproved {
		return ErrNotApproved
	}
	if u.IsAdmin() {
		return ErrAlreadyAdmin
	}
	if err := m.store.UpdateUserRole(ctx, id, store.RoleAdmin); err != nil {
		return notFound(err)
	}
	m.logger.Info("member promoted", "user_id", id)
	return nil
}

// Delete removes a member and everything they wrote. actorID is the admin
// making the request and cannot delete themselves.
func (m *Members) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfDelete
	}
	err := m.store.DeleteUserGuarded(ctx, id)
	switch {
	case errors.Is(err, store.ErrLastAdmin):
		return ErrLastAdmin
	case err != nil:
		return notFound(err)
	}
	m.logger.Info("member deleted", "user_id", id, "actor", actorID)
	return nil
}

// Claim makes the caller the admin when no admin exists yet.
func (m *Members) Claim(ctx context.Context, userID string) error {
	admin := store.RoleAdmin
	n, err := m.store.CountUsers(ctx, store.UserFilter{Role: &admin})
	if err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if n > 0 {
		return ErrAdminExists
	}
	if err := m.store.GrantAdmin(ctx, userID); err != nil {
		return notFound(err)
	}
	m.logger.Warn("admin role claimed", "user_id", userID)
	return nil
}

// Bootstrap makes the account with the given email the first admin,
// creating it when it does not exist. It fails with ErrAdminExists once any
// admin exists. created reports whether a new account was made.
func (m *Members) Bootstrap(ctx context.Context, email string) (u *store.User, created bool, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, false, fmt.Errorf("invalid email %q", email)
	}

	admin := store.RoleAdmin
	n, err := m.store.CountUsers(ctx, store.UserFilter{Role: &admin})
	if err != nil {
		return nil, false, fmt.Errorf("counting admins: %w", err)
	}
	if n > 0 {
		return nil, false, ErrAdminExists
	}

	u, created, err = m.store.CreateUserIfEmailAbsent(ctx, &store.User{
		Email:  email,
		Name:   truncate(email[:strings.IndexByte(email, '@')], MaxNameLength),
		Status: store.UserStatusApproved,
		Role:   store.RoleAdmin,
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		if err := m.store.GrantAdmin(ctx, u.ID); err != nil {
			return nil, false, notFound(err)
		}
		u.Role = store.RoleAdmin
		u.Status = store.UserStatusApproved
	}
	m.logger.Warn("admin bootstrapped", "user_id", u.ID, "created", created)
	return u, created, nil
}

// Lookup finds a user by ID or, when ref contains an @, by email.
func (m *Members) Lookup(ctx context.Context, ref string) (*store.User, error) {
	ref = strings.TrimSpace(ref)
	var u *store.User
	var err error
	if strings.Contains(ref, "@") {
		u, err = m.store.GetUserByEmail(ctx, ref)
	} else {
		u, err = m.store.GetUser(ctx, ref)
	}
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// SetPasswordHash stores a credential hash for the user. An empty hash
// removes it.
func (m *Members) SetPasswordHash(ctx context.Context, id, hash string) error {
	if err := m.store.SetPasswordHash(ctx, id, hash); err != nil {
		return notFound(err)
	}
	m.logger.Info("password changed", "user_id", id)
	return nil
}

// UpdateIntro stores the self-introduction a pending member writes for the
// admins. A blank name keeps the current one.
func (m *Members) UpdateIntro(ctx context.Context, userID, intro, name string) error {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotPending
		}
		return err
	}
	if u.Status != store.UserStatusPending {
		return ErrNotPending
	}

	intro = truncate(strings.TrimSpace(intro), MaxIntroLength)
	name = truncate(strings.TrimSpace(name), MaxNameLength)
	if name == "" {
		name = u.Name
	}
	return m.store.UpdateUserProfile(ctx, userID, name, intro)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
