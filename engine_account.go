package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pipelinedash/authcore/account"
	"github.com/pipelinedash/authcore/permission"
)

// CreateUser validates and stores a new active user. An empty role gets the
// lowest role of the policy.
func (e *Engine) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	u, err := e.users.Create(ctx, nu)
	nu.Password = ""
	if err != nil {
		mapped := e.mapAccountError(err)
		e.emitAudit(ctx, auditEventUserCreated, false, "", "", mapped, func() map[string]string {
			return map[string]string{"username": account.NormalizeIdentifier(nu.Username)}
		})
		return nil, mapped
	}

	e.metricInc(MetricUserCreated)
	e.emitAudit(ctx, auditEventUserCreated, true, u.ID, "", nil, func() map[string]string {
		return map[string]string{"username": u.Username, "role": u.Role}
	})
	out := e.publicUser(u)
	return &out, nil
}

// UpdateUser merges patch into the stored user. A password change, or a
// status change away from active, invalidates every session of the user.
func (e *Engine) UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	u, changes, err := e.users.Update(ctx, id, patch)
	if err != nil {
		mapped := e.mapAccountError(err)
		e.emitAudit(ctx, auditEventUserUpdated, false, id, "", mapped, nil)
		return nil, mapped
	}

	revoked := 0
	if changes.Password || (changes.Status && u.Status != account.StatusActive) {
		revoked, err = e.sessions.InvalidateAll(ctx, u.ID)
		if err != nil {
			e.logger.Error().Err(err).Str("user_id", u.ID).Msg("session invalidation after user update failed")
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		e.metrics.Add(MetricSessionInvalidated, uint64(revoked))
	}

	e.metricInc(MetricUserUpdated)
	e.emitAudit(ctx, auditEventUserUpdated, true, u.ID, "", nil, func() map[string]string {
		return map[string]string{
			"fields":           strings.Join(patchedFields(patch), ","),
			"sessions_revoked": strconv.Itoa(revoked),
		}
	})
	out := e.publicUser(u)
	return &out, nil
}

// ChangePassword replaces the caller's own password once current checks
// out. The calling session stays signed in and every other session of the
// user is invalidated. It returns the number of sessions removed.
func (e *Engine) ChangePassword(ctx context.Context, caller *AuthResult, current, next string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if caller == nil || caller.SessionID == "" {
		return 0, ErrSessionNotFound
	}
	userID := caller.User.ID

	if _, err := e.users.VerifyPassword(ctx, userID, current); err != nil {
		mapped := e.mapAccountError(err)
		e.emitAudit(ctx, auditEventPasswordChanged, false, userID, caller.SessionID, mapped, nil)
		return 0, mapped
	}
	if _, _, err := e.users.Update(ctx, userID, UserPatch{Password: &next}); err != nil {
		mapped := e.mapAccountError(err)
		e.emitAudit(ctx, auditEventPasswordChanged, false, userID, caller.SessionID, mapped, nil)
		return 0, mapped
	}

	removed, err := e.sessions.InvalidateAllExcept(ctx, userID, caller.SessionID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("session invalidation after password change failed")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricUserUpdated)
	e.metrics.Add(MetricSessionInvalidated, uint64(removed))
	e.emitAudit(ctx, auditEventPasswordChanged, true, userID, caller.SessionID, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(removed)}
	})
	return removed, nil
}

// DeleteUser removes the user and then every session the user holds. It
// returns the number of sessions removed.
func (e *Engine) DeleteUser(ctx context.Context, id string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	if err := e.users.Delete(ctx, id); err != nil {
		mapped := e.mapAccountError(err)
		e.emitAudit(ctx, auditEventUserDeleted, false, id, "", mapped, nil)
		return 0, mapped
	}

	// Sessions left behind by a failure here are rejected on their next
	// use because the owner no longer resolves.
	removed, err := e.sessions.InvalidateAll(ctx, id)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", id).Msg("session cascade after user delete failed")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricUserDeleted)
	e.metrics.Add(MetricSessionInvalidated, uint64(removed))
	e.emitAudit(ctx, auditEventUserDeleted, true, id, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(removed)}
	})
	return removed, nil
}

func (e *Engine) GetUserByID(ctx context.Context, id string) (*User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	u, err := e.users.FindByID(ctx, id)
	if err != nil {
		return nil, e.mapAccountError(err)
	}
	out := e.publicUser(u)
	return &out, nil
}

// ListUsers returns every user ordered by username.
func (e *Engine) ListUsers(ctx context.Context) ([]User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	users, err := e.users.List(ctx)
	if err != nil {
		return nil, e.mapAccountError(err)
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, e.publicUser(u))
	}
	return out, nil
}

// SeedUsers creates bootstrap users. Users whose username or email is
// already taken are skipped.
func (e *Engine) SeedUsers(ctx context.Context, users []NewUser) (SeedResult, error) {
	var res SeedResult
	for _, nu := range users {
		u, err := e.CreateUser(ctx, nu)
		switch {
		case err == nil:
			res.Created = append(res.Created, u.Username)
		case errors.Is(err, ErrDuplicateUsername), errors.Is(err, ErrDuplicateEmail):
			res.Skipped = append(res.Skipped, account.NormalizeIdentifier(nu.Username))
		default:
			return res, fmt.Errorf("seed %q: %w", nu.Username, err)
		}
	}
	if len(res.Created) > 0 {
		e.logger.Info().Strs("users", res.Created).Msg("seeded users")
	}
	return res, nil
}

// DefaultSeedUsers returns one user per built-in role. The passwords are
// well known and meant for local development only.
func DefaultSeedUsers() []NewUser {
	return []NewUser{
		{
			Username: "admin",
			Email:    "admin@example.com",
			FullName: "Admin User",
			Password: "adminpassword",
			Role:     permission.RoleAdmin,
		},
		{
			Username: "editor",
			Email:    "editor@example.com",
			FullName: "Editor User",
			Password: "editorpassword",
			Role:     permission.RoleEditor,
		},
		{
			Username: "viewer",
			Email:    "viewer@example.com",
			FullName: "Viewer User",
			Password: "viewerpassword",
			Role:     permission.RoleViewer,
		},
	}
}

// AuthorizeUserAction checks that caller may manage users holding
// targetRole: it needs users:manage and a role strictly above targetRole.
func (e *Engine) AuthorizeUserAction(ctx context.Context, caller *AuthResult, targetRole string) error {
	if caller == nil {
		return ErrForbidden
	}
	if !e.policy.HasPermission(caller.User.Role, permission.PermUsersManage) {
		return e.denied(ctx, caller, "permission", permission.PermUsersManage)
	}
	if !e.policy.CanManage(caller.User.Role, targetRole) {
		return e.denied(ctx, caller, "manage_role", targetRole)
	}
	return nil
}

func (e *Engine) mapAccountError(err error) error {
	switch {
	case errors.Is(err, account.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, account.ErrDuplicateUsername):
		return ErrDuplicateUsername
	case errors.Is(err, account.ErrDuplicateEmail):
		return ErrDuplicateEmail
	case errors.Is(err, account.ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, account.ErrPasswordPolicy):
		return ErrPasswordPolicy
	case errors.Is(err, account.ErrInvalidRole):
		return ErrInvalidRole
	case errors.Is(err, account.ErrInvalidStatus):
		return ErrInvalidStatus
	case errors.Is(err, account.ErrInvalidInput):
		return ErrInvalidInput
	default:
		e.logger.Error().Err(err).Msg("credential store failure")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func patchedFields(p UserPatch) []string {
	var fields []string
	if p.Username != nil {
		fields = append(fields, "username")
	}
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.FullName != nil {
		fields = append(fields, "fullName")
	}
	if p.Password != nil {
		fields = append(fields, "password")
	}
	if p.Role != nil {
		fields = append(fields, "role")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	return fields
}
