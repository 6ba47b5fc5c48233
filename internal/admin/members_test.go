// ABOUTME: Tests for membership administration against a real SQLite store
// ABOUTME: Covers status changes, promotion rules, delete guards, claim and intro edits

package admin

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorale/internal/store"
)

func setupMembers(t *testing.T) (*Members, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewMembers(s, nil), s
}

func createUser(t *testing.T, s *store.SQLiteStore, email string, status store.UserStatus, role store.UserRole) *store.User {
	t.Helper()
	u := &store.User{Email: email, Name: strings.Split(email, "@")[0], Status: status, Role: role}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestMembers_ApproveReject(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	u := createUser(t, s, "soprano@example.com", store.UserStatusPending, store.RoleMember)

	require.NoError(t, m.Approve(ctx, u.ID))
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, store.UserStatusApproved, got.Status)

	require.NoError(t, m.Reject(ctx, u.ID))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, store.UserStatusRejected, got.Status)

	assert.ErrorIs(t, m.Approve(ctx, "missing"), ErrUserNotFound)
	assert.ErrorIs(t, m.Reject(ctx, "missing"), ErrUserNotFound)
}

func TestMembers_ListUsers(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	createUser(t, s, "a@example.com", store.UserStatusApproved, store.RoleAdmin)
	createUser(t, s, "b@example.com", store.UserStatusPending, store.RoleMember)

	all, err := m.ListUsers(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending := store.UserStatusPending
	only, err := m.ListUsers(ctx, &pending)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "b@example.com", only[0].Email)
}

func TestMembers_Promote(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	admin := createUser(t, s, "admin@example.com", store.UserStatusApproved, store.RoleAdmin)
	member := createUser(t, s, "alto@example.com", store.UserStatusApproved, store.RoleMember)
	pending := createUser(t, s, "tenor@example.com", store.UserStatusPending, store.RoleMember)

	tests := []struct {
		name string
		id   string
		want error
	}{
		{"missing", "missing", ErrUserNotFound},
		{"pending", pending.ID, ErrNotApproved},
		{"already admin", admin.ID, ErrAlreadyAdmin},
		{"approved member", member.ID, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Promote(ctx, tt.id)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	got, err := s.GetUser(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())
}

func TestMembers_Delete(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	admin := createUser(t, s, "admin@example.com", store.UserStatusApproved, store.RoleAdmin)
	member := createUser(t, s, "bass@example.com", store.UserStatusApproved, store.RoleMember)

	assert.ErrorIs(t, m.Delete(ctx, admin.ID, admin.ID), ErrSelfDelete)
	assert.ErrorIs(t, m.Delete(ctx, admin.ID, "missing"), ErrUserNotFound)

	require.NoError(t, m.Delete(ctx, admin.ID, member.ID))
	_, err := s.GetUser(ctx, member.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMembers_DeleteLastAdmin(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	first := createUser(t, s, "one@example.com", store.UserStatusApproved, store.RoleAdmin)
	second := createUser(t, s, "two@example.com", store.UserStatusApproved, store.RoleAdmin)

	// a non-last admin can be deleted by another admin
	require.NoError(t, m.Delete(ctx, first.ID, second.ID))

	// the remaining admin is the last one; an actor that is not themselves
	// (for example the offline CLI) still cannot remove them
	assert.ErrorIs(t, m.Delete(ctx, "", first.ID), ErrLastAdmin)
}

func TestMembers_Claim(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	u := createUser(t, s, "first@example.com", store.UserStatusPending, store.RoleMember)
	other := createUser(t, s, "second@example.com", store.UserStatusPending, store.RoleMember)

	require.NoError(t, m.Claim(ctx, u.ID))
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())
	assert.Equal(t, store.UserStatusApproved, got.Status)

	assert.ErrorIs(t, m.Claim(ctx, other.ID), ErrAdminExists)
}

func TestMembers_UpdateIntro(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	u := createUser(t, s, "new@example.com", store.UserStatusPending, store.RoleMember)

	long := strings.Repeat("가", MaxIntroLength+20)
	require.NoError(t, m.UpdateIntro(ctx, u.ID, "  "+long+"  ", "  "))
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, MaxIntroLength, len([]rune(got.IntroMessage)))
	assert.Equal(t, "new", got.Name, "blank name keeps the existing one")

	require.NoError(t, m.UpdateIntro(ctx, u.ID, "", strings.Repeat("n", 40)))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.IntroMessage)
	assert.Len(t, got.Name, MaxNameLength)

	approved := createUser(t, s, "ok@example.com", store.UserStatusApproved, store.RoleMember)
	assert.ErrorIs(t, m.UpdateIntro(ctx, approved.ID, "hi", ""), ErrNotPending)
	assert.ErrorIs(t, m.UpdateIntro(ctx, "missing", "hi", ""), ErrNotPending)
}

func TestMembers_Bootstrap(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()

	_, _, err := m.Bootstrap(ctx, "not-an-email")
	assert.Error(t, err)

	u, created, err := m.Bootstrap(ctx, "  Director@Example.com ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "director@example.com", u.Email)
	assert.Equal(t, "director", u.Name)
	assert.True(t, u.IsAdmin())

	stored, err := s.GetUserByEmail(ctx, "director@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)
	assert.Equal(t, store.RoleAdmin, stored.Role)
	assert.Equal(t, store.UserStatusApproved, stored.Status)

	_, _, err = m.Bootstrap(ctx, "other@example.com")
	assert.ErrorIs(t, err, ErrAdminExists)
}

func TestMembers_BootstrapPromotesExisting(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	existing := createUser(t, s, "alto@example.com", store.UserStatusPending, store.RoleMember)

	u, created, err := m.Bootstrap(ctx, "alto@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, u.ID)

	got, err := s.GetUser(ctx, existing.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())
	assert.Equal(t, store.UserStatusApproved, got.Status)
}

func TestMembers_LookupAndPassword(t *testing.T) {
	m, s := setupMembers(t)
	ctx := context.Background()
	u := createUser(t, s, "tenor@example.com", store.UserStatusApproved, store.RoleMember)

	byEmail, err := m.Lookup(ctx, "tenor@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := m.Lookup(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	_, err = m.Lookup(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, m.SetPasswordHash(ctx, u.ID, "$2a$10$hash"))
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$hash", got.PasswordHash)

	assert.ErrorIs(t, m.SetPasswordHash(ctx, "missing", "x"), ErrUserNotFound)
}
