package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pipelinedash/authcore/account"
	"github.com/pipelinedash/authcore/internal"
	"github.com/pipelinedash/authcore/internal/flows"
)

// Authenticate verifies an access token, checks that its session is live,
// re-reads the user so role and status changes apply immediately, and bumps
// the session's last activity.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	start := time.Now()
	res, err := e.authenticate(ctx, accessToken)
	if e.metrics != nil {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, err
	}
	e.metricInc(MetricAuthenticateSuccess)
	return res, nil
}

func (e *Engine) authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	res := e.flows.Validate(ctx, accessToken)
	if res.Failure != flows.ValidateFailureNone {
		return nil, e.validateError(res)
	}

	u := res.Account.Record.(*account.User)
	perms, err := e.policy.PermissionsFor(u.Role)
	if err != nil {
		// A role removed from the policy grants nothing.
		perms = []string{}
	}
	return &AuthResult{
		User:        e.publicUser(u),
		SessionID:   res.Claims.SessionID,
		Permissions: perms,
	}, nil
}

func (e *Engine) validateError(res flows.ValidateResult) error {
	switch res.Failure {
	case flows.ValidateFailureExpired:
		return ErrTokenExpired
	case flows.ValidateFailureMalformed:
		return ErrTokenMalformed
	case flows.ValidateFailureSessionNotFound, flows.ValidateFailureAccountNotFound:
		return ErrSessionNotFound
	case flows.ValidateFailureInactive:
		return ErrAccountInactive
	default:
		e.logger.Error().
			Err(res.Err).
			Str("session", internal.ShortID(res.Claims.SessionID)).
			Msg("authenticate storage failure")
		return fmt.Errorf("%w: %v", ErrUnavailable, res.Err)
	}
}

// AuthenticateOrRefresh behaves like [Engine.Authenticate], except that an
// expired access token is exchanged using refreshToken. The refresh token
// must belong to the same session as the access token. On success
// AuthResult.Refreshed carries the new pair.
func (e *Engine) AuthenticateOrRefresh(ctx context.Context, accessToken, refreshToken string) (*AuthResult, error) {
	res, err := e.Authenticate(ctx, accessToken)
	if err == nil || !errors.Is(err, ErrTokenExpired) || refreshToken == "" {
		return res, err
	}

	// Expiry is reported only after the signature checked out, so the
	// session id can be read without verifying again.
	claims := e.tokens.DecodeUnverified(accessToken)
	if claims == nil || claims.SessionID == "" {
		return nil, ErrTokenMalformed
	}

	pair, err := e.refresh(ctx, refreshToken, claims.SessionID)
	if err != nil {
		return nil, err
	}

	res, err = e.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	res.Refreshed = pair
	e.metricInc(MetricAutoRefresh)
	return res, nil
}

// Authorize checks that the authenticated user's live role is at least
// requiredRole.
func (e *Engine) Authorize(ctx context.Context, res *AuthResult, requiredRole string) error {
	if res == nil {
		return ErrForbidden
	}
	if e.policy.AtLeast(res.User.Role, requiredRole) {
		return nil
	}
	return e.denied(ctx, res, "role", requiredRole)
}

// AuthorizePermission checks that the authenticated user's live role
// effectively holds perm.
func (e *Engine) AuthorizePermission(ctx context.Context, res *AuthResult, perm string) error {
	if res == nil {
		return ErrForbidden
	}
	if e.policy.HasPermission(res.User.Role, perm) {
		return nil
	}
	return e.denied(ctx, res, "permission", perm)
}

func (e *Engine) denied(ctx context.Context, res *AuthResult, kind, required string) error {
	e.metricInc(MetricAuthorizationDenied)
	e.emitAudit(ctx, auditEventAuthorizationError, false, res.User.ID, res.SessionID, ErrForbidden, func() map[string]string {
		return map[string]string{kind: required, "role": res.User.Role}
	})
	return ErrForbidden
}

// PermissionsFor returns the effective permissions of role.
func (e *Engine) PermissionsFor(role string) ([]string, error) {
	perms, err := e.policy.PermissionsFor(role)
	if err != nil {
		return nil, ErrInvalidRole
	}
	return perms, nil
}

// LevelOf returns the level of role.
func (e *Engine) LevelOf(role string) (int, error) {
	level, err := e.policy.LevelOf(role)
	if err != nil {
		return 0, ErrInvalidRole
	}
	return level, nil
}

func (e *Engine) HasPermission(role, perm string) bool {
	return e.policy.HasPermission(role, perm)
}

// CanManage reports whether managerRole strictly outranks targetRole.
func (e *Engine) CanManage(managerRole, targetRole string) bool {
	return e.policy.CanManage(managerRole, targetRole)
}
