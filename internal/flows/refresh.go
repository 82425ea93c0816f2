package flows

import (
	"context"
	"errors"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureExpired
	RefreshFailureBinding
	RefreshFailureSessionNotFound
	RefreshFailureAccountNotFound
	RefreshFailureInactive
	RefreshFailureIssue
	RefreshFailureReuse
	RefreshFailureBackend
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	SessionID    string
	Account      Account
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// VerifyRefresh returns the claims together with Expired when the token
	// is authentic but past its expiry.
	VerifyRefresh   func(token string) (RefreshClaims, error)
	Expired         error
	SessionOwner    func(ctx context.Context, sessionID string) (string, error)
	SessionNotFound error
	LoadAccount     func(ctx context.Context, userID string) (Account, error)
	AccountNotFound error
	IssueAccess     func(acct Account, sessionID string) (string, error)
	IssueRefresh    func(userID, sessionID string) (string, error)
	// Rotate swaps presented for next. A mismatch deletes the session and
	// returns RefreshMismatch.
	Rotate          func(ctx context.Context, sessionID, presented, next string) error
	RefreshMismatch error
	DeleteSession   func(ctx context.Context, sessionID string) error
	Warn            func(string, ...any)
}

// RunRefresh validates refreshToken against its session, mints a new pair
// and rotates the stored refresh token. When boundSessionID is set, the
// refresh token must name that session. Every failure that identifies a
// session removes it.
func RunRefresh(ctx context.Context, refreshToken, boundSessionID string, deps RefreshDeps) RefreshResult {
	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		if deps.Expired != nil && errors.Is(err, deps.Expired) && claims.SessionID != "" {
			drop(ctx, claims.SessionID, deps)
			return RefreshResult{Failure: RefreshFailureExpired, Err: err, SessionID: claims.SessionID}
		}
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	sessionID := claims.SessionID

	if boundSessionID != "" && boundSessionID != sessionID {
		return RefreshResult{Failure: RefreshFailureBinding, SessionID: boundSessionID}
	}

	owner, err := deps.SessionOwner(ctx, sessionID)
	if err != nil {
		if errors.Is(err, deps.SessionNotFound) {
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SessionID: sessionID}
		}
		return RefreshResult{Failure: RefreshFailureBackend, Err: err, SessionID: sessionID}
	}
	if owner != claims.UserID {
		drop(ctx, sessionID, deps)
		return RefreshResult{Failure: RefreshFailureDecode, SessionID: sessionID}
	}

	acct, err := deps.LoadAccount(ctx, owner)
	if err != nil {
		if errors.Is(err, deps.AccountNotFound) {
			drop(ctx, sessionID, deps)
			return RefreshResult{Failure: RefreshFailureAccountNotFound, Err: err, SessionID: sessionID}
		}
		return RefreshResult{Failure: RefreshFailureBackend, Err: err, SessionID: sessionID}
	}
	if !acct.Active {
		drop(ctx, sessionID, deps)
		return RefreshResult{Failure: RefreshFailureInactive, SessionID: sessionID, Account: acct}
	}

	access, err := deps.IssueAccess(acct, sessionID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, SessionID: sessionID, Account: acct}
	}
	next, err := deps.IssueRefresh(acct.ID, sessionID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, SessionID: sessionID, Account: acct}
	}

	if err := deps.Rotate(ctx, sessionID, refreshToken, next); err != nil {
		switch {
		case errors.Is(err, deps.RefreshMismatch):
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, SessionID: sessionID, Account: acct}
		case errors.Is(err, deps.SessionNotFound):
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SessionID: sessionID, Account: acct}
		default:
			return RefreshResult{Failure: RefreshFailureBackend, Err: err, SessionID: sessionID, Account: acct}
		}
	}

	return RefreshResult{
		SessionID:    sessionID,
		Account:      acct,
		AccessToken:  access,
		RefreshToken: next,
	}
}

func drop(ctx context.Context, sessionID string, deps RefreshDeps) {
	if deps.DeleteSession == nil {
		return
	}
	if err := deps.DeleteSession(ctx, sessionID); err != nil && deps.Warn != nil {
		deps.Warn("session removal after refresh failure failed", "error", err)
	}
}
