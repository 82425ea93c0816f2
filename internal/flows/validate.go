package flows

import (
	"context"
	"errors"
)

// ValidateFailureKind classifies authentication failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMalformed
	ValidateFailureExpired
	ValidateFailureSessionNotFound
	ValidateFailureAccountNotFound
	ValidateFailureInactive
	ValidateFailureBackend
)

// ValidateResult is the outcome of authenticating an access token. Account
// carries the live record, so Role reflects changes made after the token was
// minted.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  AccessClaims
	Account Account
}

// ValidateDeps captures authentication flow dependencies.
type ValidateDeps struct {
	VerifyAccess    func(token string) (AccessClaims, error)
	Expired         error
	SessionOwner    func(ctx context.Context, sessionID string) (string, error)
	SessionNotFound error
	LoadAccount     func(ctx context.Context, userID string) (Account, error)
	AccountNotFound error
	Touch           func(ctx context.Context, sessionID string) error
	DeleteSession   func(ctx context.Context, sessionID string) error
	Warn            func(string, ...any)
}

// RunValidate verifies an access token, checks that its session is live and
// owned by the token's subject, re-reads the user and bumps the session's
// last activity.
func RunValidate(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	claims, err := deps.VerifyAccess(token)
	if err != nil {
		if deps.Expired != nil && errors.Is(err, deps.Expired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
	}

	owner, err := deps.SessionOwner(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, deps.SessionNotFound) {
			return ValidateResult{Failure: ValidateFailureSessionNotFound, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureBackend, Err: err, Claims: claims}
	}
	if owner != claims.UserID {
		return ValidateResult{Failure: ValidateFailureSessionNotFound, Claims: claims}
	}

	acct, err := deps.LoadAccount(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, deps.AccountNotFound) {
			removeSession(ctx, claims.SessionID, deps)
			return ValidateResult{Failure: ValidateFailureAccountNotFound, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureBackend, Err: err, Claims: claims}
	}
	if !acct.Active {
		removeSession(ctx, claims.SessionID, deps)
		return ValidateResult{Failure: ValidateFailureInactive, Claims: claims, Account: acct}
	}

	if err := deps.Touch(ctx, claims.SessionID); err != nil {
		if errors.Is(err, deps.SessionNotFound) {
			return ValidateResult{Failure: ValidateFailureSessionNotFound, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureBackend, Err: err, Claims: claims}
	}

	return ValidateResult{Claims: claims, Account: acct}
}

func removeSession(ctx context.Context, sessionID string, deps ValidateDeps) {
	if deps.DeleteSession == nil {
		return
	}
	if err := deps.DeleteSession(ctx, sessionID); err != nil && deps.Warn != nil {
		deps.Warn("session removal for unusable account failed", "error", err)
	}
}
