package authcore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedash/authcore/account"
	"github.com/pipelinedash/authcore/permission"
)

func TestCreateUser(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	u, err := e.CreateUser(ctx, NewUser{
		Username: " Dana ",
		Email:    "Dana@Example.com",
		FullName: "Dana Scully",
		Password: "dana-password",
	})
	require.NoError(t, err)
	assert.Equal(t, "dana", u.Username)
	assert.Equal(t, "dana@example.com", u.Email)
	assert.Equal(t, permission.RoleViewer, u.Role)
	assert.Equal(t, StatusActive, u.Status)
	assert.False(t, u.IsAdmin)
	assert.Nil(t, u.LastLogin)

	admin := mustCreateUser(t, e, "root", permission.RoleAdmin)
	assert.True(t, admin.IsAdmin)

	_, err = e.CreateUser(ctx, NewUser{Username: "DANA", Password: "another-password"})
	require.ErrorIs(t, err, ErrDuplicateUsername)
	_, err = e.CreateUser(ctx, NewUser{Username: "dana2", Email: "dana@example.com", Password: "another-password"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	_, err = e.CreateUser(ctx, NewUser{Username: "short", Password: "abc"})
	require.ErrorIs(t, err, ErrPasswordPolicy)
	_, err = e.CreateUser(ctx, NewUser{Username: "ghost", Password: "ghost-password", Role: "superuser"})
	require.ErrorIs(t, err, ErrInvalidRole)
	_, err = e.CreateUser(ctx, NewUser{Username: "", Password: "blank-password"})
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, uint64(2), e.MetricsSnapshot().Counters[MetricUserCreated])
}

func TestGetAndListUsers(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	alice := mustCreateUser(t, e, "alice", permission.RoleViewer)
	mustCreateUser(t, e, "bob", permission.RoleEditor)

	got, err := e.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = e.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)

	users, err := e.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
}

func TestUpdateUserMergesFields(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	name := "Alice Liddell"
	updated, err := e.UpdateUser(ctx, u.ID, UserPatch{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.FullName)
	assert.Equal(t, u.Email, updated.Email)
	assert.Equal(t, u.Role, updated.Role)

	// Profile edits keep sessions alive.
	_, err = e.Authenticate(ctx, login.AccessToken)
	require.NoError(t, err)

	missing := "x"
	_, err = e.UpdateUser(ctx, "missing", UserPatch{FullName: &missing})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestPasswordChangeRevokesSessions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)
	first := mustLogin(t, e, "alice", "10.0.0.1")
	second := mustLogin(t, e, "alice", "10.0.0.2")

	pw := "a-brand-new-password"
	_, err := e.UpdateUser(ctx, u.ID, UserPatch{Password: &pw})
	require.NoError(t, err)

	_, err = e.Authenticate(ctx, first.AccessToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = e.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	_, err = e.Login(ctx, LoginRequest{Username: "alice", Password: "alice-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.Login(ctx, LoginRequest{Username: "alice", Password: pw})
	require.NoError(t, err)
}

func TestSuspendRevokesSessions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	suspended := StatusSuspended
	_, err := e.UpdateUser(ctx, u.ID, UserPatch{Status: &suspended})
	require.NoError(t, err)

	_, err = e.Authenticate(ctx, login.AccessToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	bogus := Status("frozen")
	_, err = e.UpdateUser(ctx, u.ID, UserPatch{Status: &bogus})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDeleteUserInvalidatesSessions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)
	first := mustLogin(t, e, "alice", "10.0.0.1")
	mustLogin(t, e, "alice", "10.0.0.2")

	removed, err := e.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = e.Authenticate(ctx, first.AccessToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = e.GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = e.DeleteUser(ctx, u.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSeedUsersSkipsExisting(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "editor", permission.RoleEditor)

	res, err := e.SeedUsers(ctx, DefaultSeedUsers())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "viewer"}, res.Created)
	assert.Equal(t, []string{"editor"}, res.Skipped)

	res, err = e.SeedUsers(ctx, DefaultSeedUsers())
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Len(t, res.Skipped, 3)

	_, err = e.Login(ctx, LoginRequest{Username: "admin", Password: "adminpassword"})
	require.NoError(t, err)
}

func TestAuthorizeUserAction(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	admin := &AuthResult{User: User{ID: "a", Role: permission.RoleAdmin}}
	editor := &AuthResult{User: User{ID: "e", Role: permission.RoleEditor}}

	require.NoError(t, e.AuthorizeUserAction(ctx, admin, permission.RoleEditor))
	require.ErrorIs(t, e.AuthorizeUserAction(ctx, admin, permission.RoleAdmin), ErrForbidden)
	require.ErrorIs(t, e.AuthorizeUserAction(ctx, editor, permission.RoleViewer), ErrForbidden)
	require.ErrorIs(t, e.AuthorizeUserAction(ctx, nil, permission.RoleViewer), ErrForbidden)
}

func TestPostgresBackedLookupOfMalformedIDIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e, _ := newTestEngine(t, func(b *Builder, _ *Config) {
		b.WithUserRepository(account.NewPostgresRepository(db))
	})
	ctx := context.Background()

	_, err = e.GetUserByID(ctx, "abc")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)

	_, err = e.UpdateUser(ctx, "abc", UserPatch{})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = e.DeleteUser(ctx, "abc")
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangePasswordKeepsCallingSession(t *testing.T) {
	e, _ := newTestEngine(t, withMaxSessions(5))
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)

	current := mustLogin(t, e, "alice", "10.0.0.1")
	other := mustLogin(t, e, "alice", "10.0.0.2")

	res, err := e.Authenticate(ctx, current.AccessToken)
	require.NoError(t, err)

	_, err = e.ChangePassword(ctx, res, "not-my-password", "fresh-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.ChangePassword(ctx, res, "alice-password", "short")
	require.ErrorIs(t, err, ErrPasswordPolicy)
	_, err = e.ChangePassword(ctx, nil, "alice-password", "fresh-password")
	require.ErrorIs(t, err, ErrSessionNotFound)

	removed, err := e.ChangePassword(ctx, res, "alice-password", "fresh-password")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = e.Authenticate(ctx, current.AccessToken)
	assert.NoError(t, err)
	_, err = e.Authenticate(ctx, other.AccessToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = e.Login(ctx, LoginRequest{Username: "alice", Password: "alice-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.Login(ctx, LoginRequest{Username: "alice", Password: "fresh-password"})
	assert.NoError(t, err)
}
