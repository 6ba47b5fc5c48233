// ABOUTME: Resolves a member's session status and role at sign-in and at refresh
// ABOUTME: Applies the first-admin bootstrap rule and the local credential login

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/chorale/internal/store"
)

// Method names how a member proved their identity.
type Method string

const (
	MethodGoogle      Method = "google"
	MethodNaver       Method = "naver"
	MethodKakao       Method = "kakao"
	MethodPasskey     Method = "passkey"
	MethodCredentials Method = "credentials"
)

// Resolver errors
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrCredentialsDisabled = errors.New("credential login is disabled")
)

// UserStore is the subset of store.UserStore the resolver needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	CountUsers(ctx context.Context, filter store.UserFilter) (int, error)
	CreateUserIfEmailAbsent(ctx context.Context, u *store.User) (*store.User, bool, error)
	GrantAdmin(ctx context.Context, id string) error
}

// Session is a freshly minted token together with its claims.
type Session struct {
	Token  string
	Claims *Claims
}

// ResolverConfig configures credential login.
type ResolverConfig struct {
	CredentialsEnabled bool
	DevPassword        string
}

// Resolver produces consistent (status, role) pairs for session tokens.
type Resolver struct {
	users    UserStore
	sessions *Sessions
	cfg      ResolverConfig
	logger   *slog.Logger
}

// NewResolver creates a resolver backed by the user store.
func NewResolver(users UserStore, sessions *Sessions, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With("component", "auth"),
	}
}

// Sessions returns the token signer the resolver mints with.
func (r *Resolver) Sessions() *Sessions {
	return r.sessions
}

// CredentialsEnabled reports whether CredentialSignIn is available.
func (r *Resolver) CredentialsEnabled() bool {
	return r.cfg.CredentialsEnabled
}

// SignIn runs the sign-in event for an already identified user and mints a
// session from the persisted record.
//
// When the site has no admin and the method is not credentials, the user is
// promoted to an approved admin first. The admin count read and the promotion
// are not serialized: two simultaneous first sign-ins can both be promoted.
func (r *Resolver) SignIn(ctx context.Context, userID string, method Method) (*Session, error) {
	if method != MethodCredentials {
		if err := r.bootstrapAdmin(ctx, userID, method); err != nil {
			return nil, err
		}
	}

	u, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return r.mint(u)
}

func (r *Resolver) bootstrapAdmin(ctx context.Context, userID string, method Method) error {
	admin := store.RoleAdmin
	admins, err := r.users.CountUsers(ctx, store.UserFilter{Role: &admin})
	if err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if admins > 0 {
		return nil
	}
	if err := r.users.GrantAdmin(ctx, userID); err != nil {
		return fmt.Errorf("granting bootstrap admin: %w", err)
	}
	r.logger.Info("first sign-in promoted to admin", "user_id", userID, "method", method)
	return nil
}

// CredentialSignIn authenticates by email and password, creating the user on
// first use. The very first user of the site becomes an approved admin; later
// users start pending. Existing users are never modified.
func (r *Resolver) CredentialSignIn(ctx context.Context, email, password string) (*Session, error) {
	if !r.cfg.CredentialsEnabled {
		return nil, ErrCredentialsDisabled
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := r.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !r.checkPassword(u, password) {
			return nil, ErrInvalidCredentials
		}
	case errors.Is(err, store.ErrNotFound):
		if !r.checkPassword(nil, password) {
			return nil, ErrInvalidCredentials
		}
		if u, err = r.createCredentialUser(ctx, email); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	return r.SignIn(ctx, u.ID, MethodCredentials)
}

func (r *Resolver) createCredentialUser(ctx context.Context, email string) (*store.User, error) {
	total, err := r.users.CountUsers(ctx, store.UserFilter{})
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	candidate := &store.User{
		Email:  email,
		Name:   localPart(email),
		Status: store.UserStatusPending,
		Role:   store.RoleMember,
	}
	if total == 0 {
		candidate.Status = store.UserStatusApproved
		candidate.Role = store.RoleAdmin
	}

	u, created, err := r.users.CreateUserIfEmailAbsent(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	if created {
		r.logger.Info("credential user created", "user_id", u.ID, "status", u.Status, "role", u.Role)
	}
	return u, nil
}

// checkPassword compares against the user's bcrypt hash when one is set and
// against the shared development password otherwise.
func (r *Resolver) checkPassword(u *store.User, password string) bool {
	if u != nil && u.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
	}
	return r.cfg.DevPassword != "" && password == r.cfg.DevPassword
}

// Refresh re-reads the member's status and role and mints a new token. If the
// record cannot be read, the previous claims are re-signed with their original
// expiry, so a deleted member is signed out when that token lapses.
func (r *Resolver) Refresh(ctx context.Context, prev *Claims) (*Session, error) {
	u, err := r.users.GetUser(ctx, prev.UserID())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("session refresh lookup failed, keeping claims", "user_id", prev.UserID(), "error", err)
		}
		token, claims, err := r.sessions.Reissue(prev)
		if err != nil {
			return nil, err
		}
		return &Session{Token: token, Claims: claims}, nil
	}
	return r.mint(u)
}

func (r *Resolver) mint(u *store.User) (*Session, error) {
	token, claims, err := r.sessions.MintUser(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Claims: claims}, nil
}

// HashPassword returns a bcrypt hash for storing as a member's credential.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}
