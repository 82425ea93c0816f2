package flows

import (
	"context"
	"errors"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureLimiterBackend
	LoginFailureCredentials
	LoginFailureInactive
	LoginFailureLookup
	LoginFailureSessionID
	LoginFailureIssue
	LoginFailureSession
)

// LoginRequest carries the credentials and client metadata of a login.
type LoginRequest struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult carries either the issued token pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Account      Account
	SessionID    string
	AccessToken  string
	RefreshToken string
	Evicted      []string
}

type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, username, ip string) error
	IncrementLogin(ctx context.Context, username, ip string) error
	ResetLogin(ctx context.Context, username, ip string) error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	RateLimiter        LoginRateLimiter
	RateLimited        error
	Authenticate       func(ctx context.Context, username, password string) (Account, error)
	InvalidCredentials error
	NewSessionID       func() (string, error)
	IssueAccess        func(acct Account, sessionID string) (string, error)
	IssueRefresh       func(userID, sessionID string) (string, error)
	CreateSession      func(ctx context.Context, sessionID string, acct Account, req LoginRequest, refreshToken string) ([]string, error)
	Warn               func(string, ...any)
}

// RunLogin verifies credentials, mints a token pair bound to a fresh session
// id and persists the session, applying the per-user cap.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) LoginResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckLogin(ctx, req.Username, req.IP); err != nil {
			return limiterFailure(err, deps)
		}
	}

	if req.Password == "" {
		return failedAttempt(ctx, req, deps)
	}

	acct, err := deps.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, deps.InvalidCredentials) {
			return failedAttempt(ctx, req, deps)
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}
	if !acct.Active {
		return LoginResult{Failure: LoginFailureInactive, Account: acct}
	}

	sessionID, err := deps.NewSessionID()
	if err != nil {
		return LoginResult{Failure: LoginFailureSessionID, Err: err, Account: acct}
	}

	access, err := deps.IssueAccess(acct, sessionID)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Account: acct}
	}
	refresh, err := deps.IssueRefresh(acct.ID, sessionID)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Account: acct}
	}

	evicted, err := deps.CreateSession(ctx, sessionID, acct, req, refresh)
	if err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, Account: acct, SessionID: sessionID}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.ResetLogin(ctx, req.Username, req.IP); err != nil && deps.Warn != nil {
			deps.Warn("login throttle reset failed", "error", err)
		}
	}

	return LoginResult{
		Account:      acct,
		SessionID:    sessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		Evicted:      evicted,
	}
}

func failedAttempt(ctx context.Context, req LoginRequest, deps LoginDeps) LoginResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.IncrementLogin(ctx, req.Username, req.IP); err != nil {
			return limiterFailure(err, deps)
		}
	}
	return LoginResult{Failure: LoginFailureCredentials, Err: deps.InvalidCredentials}
}

func limiterFailure(err error, deps LoginDeps) LoginResult {
	if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
		return LoginResult{Failure: LoginFailureRateLimited, Err: err}
	}
	return LoginResult{Failure: LoginFailureLimiterBackend, Err: err}
}
