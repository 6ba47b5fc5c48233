// ABOUTME: Signed session tokens carrying a member's status and role
// ABOUTME: HS256 JWTs minted from the persisted user record

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/chorale/internal/store"
)

// MinSecretLength is the minimum signing secret length in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// Claims is the session payload. Status and role may lag the database by up
// to the refresh interval.
type Claims struct {
	Status store.UserStatus `json:"status"`
	Role   store.UserRole   `json:"role"`
	Name   string           `json:"name"`
	Email  string           `json:"email,omitempty"`
	Image  string           `json:"image,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}

// IsAdmin reports whether the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == store.RoleAdmin
}

// IsApproved reports whether the token carries approved status.
func (c *Claims) IsApproved() bool {
	return c.Status == store.UserStatusApproved
}

// IssuedTime returns when the token was minted, or the zero time if unknown.
func (c *Claims) IssuedTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// Sessions mints and verifies session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a token signer. The secret must be at least
// MinSecretLength bytes.
func NewSessions(secret []byte, ttl time.Duration) (*Sessions, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &Sessions{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of minted tokens.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// MintUser creates a token from a persisted user.
func (s *Sessions) MintUser(u *store.User) (string, *Claims, error) {
	return s.Mint(&Claims{
		Status:           u.Status,
		Role:             u.Role,
		Name:             u.Name,
		Email:            u.Email,
		Image:            u.Image,
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.ID},
	})
}

// Mint signs a copy of base with fresh iat and exp.
func (s *Sessions) Mint(base *Claims) (string, *Claims, error) {
	if base.Subject == "" {
		return "", nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	now := s.now()
	claims := *base
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   base.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return token, &claims, nil
}

// Reissue signs prev again with a fresh iat but its original exp, so a
// session that can no longer be checked against the database still ends.
func (s *Sessions) Reissue(prev *Claims) (string, *Claims, error) {
	if prev.ExpiresAt == nil {
		return s.Mint(prev)
	}
	if prev.Subject == "" {
		return "", nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	claims := *prev
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   prev.Subject,
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: prev.ExpiresAt,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return token, &claims, nil
}

// Parse validates a token and returns its claims.
func (s *Sessions) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuedAt())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims, nil
}
