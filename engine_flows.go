package authcore

import (
	"context"

	"github.com/pipelinedash/authcore/account"
	"github.com/pipelinedash/authcore/internal/flows"
	"github.com/pipelinedash/authcore/internal/rate"
	"github.com/pipelinedash/authcore/jwt"
	"github.com/pipelinedash/authcore/session"
)

func (e *Engine) buildFlows() flows.Service {
	var limiter flows.LoginRateLimiter
	if e.limiter != nil {
		limiter = e.limiter
	}

	issueAccess := func(acct flows.Account, sessionID string) (string, error) {
		return e.tokens.IssueAccess(jwt.Identity{
			UserID:   acct.ID,
			Username: acct.Username,
			Role:     acct.Role,
		}, sessionID)
	}
	issueRefresh := e.tokens.IssueRefresh

	verifyAccess := func(token string) (flows.AccessClaims, error) {
		c, err := e.tokens.VerifyAccess(token)
		if err != nil {
			return flows.AccessClaims{}, err
		}
		return flows.AccessClaims{
			UserID:    c.UserID,
			Username:  c.Username,
			Role:      c.Role,
			SessionID: c.SessionID,
		}, nil
	}

	sessionOwner := func(ctx context.Context, sessionID string) (string, error) {
		s, err := e.sessions.Get(ctx, sessionID)
		if err != nil {
			return "", err
		}
		return s.UserID, nil
	}

	loadAccount := func(ctx context.Context, userID string) (flows.Account, error) {
		u, err := e.users.FindByID(ctx, userID)
		if err != nil {
			return flows.Account{}, err
		}
		return flowAccount(u), nil
	}

	deleteSession := func(ctx context.Context, sessionID string) error {
		removed, err := e.sessions.Invalidate(ctx, sessionID)
		if removed {
			e.metricInc(MetricSessionInvalidated)
		}
		return err
	}

	return flows.New(flows.Deps{
		Login: flows.LoginDeps{
			RateLimiter:        limiter,
			RateLimited:        rate.ErrRateLimited,
			Authenticate:       e.authenticateCredentials,
			InvalidCredentials: account.ErrInvalidCredentials,
			NewSessionID:       e.sessions.NewID,
			IssueAccess:        issueAccess,
			IssueRefresh:       issueRefresh,
			CreateSession: func(ctx context.Context, sessionID string, acct flows.Account, req flows.LoginRequest, refreshToken string) ([]string, error) {
				_, evicted, err := e.sessions.Create(ctx, session.CreateParams{
					ID:           sessionID,
					UserID:       acct.ID,
					IP:           req.IP,
					UserAgent:    req.UserAgent,
					RefreshToken: refreshToken,
				})
				return evicted, err
			},
			Warn: e.warn,
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh: func(token string) (flows.RefreshClaims, error) {
				c, err := e.tokens.VerifyRefresh(token)
				if c == nil {
					return flows.RefreshClaims{}, err
				}
				return flows.RefreshClaims{UserID: c.UserID, SessionID: c.SessionID}, err
			},
			Expired:         jwt.ErrExpired,
			SessionOwner:    sessionOwner,
			SessionNotFound: session.ErrNotFound,
			LoadAccount:     loadAccount,
			AccountNotFound: account.ErrNotFound,
			IssueAccess:     issueAccess,
			IssueRefresh:    issueRefresh,
			Rotate:          e.sessions.CompareAndRotate,
			RefreshMismatch: session.ErrRefreshMismatch,
			DeleteSession:   deleteSession,
			Warn:            e.warn,
		},
		Validate: flows.ValidateDeps{
			VerifyAccess:    verifyAccess,
			Expired:         jwt.ErrExpired,
			SessionOwner:    sessionOwner,
			SessionNotFound: session.ErrNotFound,
			LoadAccount:     loadAccount,
			AccountNotFound: account.ErrNotFound,
			Touch:           e.sessions.Touch,
			DeleteSession:   deleteSession,
			Warn:            e.warn,
		},
		Logout: flows.LogoutDeps{
			VerifyAccess:      verifyAccess,
			InvalidateSession: e.sessions.Invalidate,
		},
	})
}

// authenticateCredentials checks a password and, for active accounts,
// replaces legacy or weak digests with a fresh hash.
func (e *Engine) authenticateCredentials(ctx context.Context, identifier, plaintext string) (flows.Account, error) {
	u, err := e.users.Authenticate(ctx, identifier, plaintext)
	if err != nil {
		return flows.Account{}, err
	}

	if u.Status == account.StatusActive {
		upgraded, err := e.users.UpgradeIfNeeded(ctx, u, plaintext)
		switch {
		case err != nil:
			e.logger.Warn().Err(err).Str("user_id", u.ID).Msg("password hash upgrade failed")
		case upgraded:
			e.metricInc(MetricPasswordUpgraded)
			e.emitAudit(ctx, auditEventPasswordUpgraded, true, u.ID, "", nil, nil)
		}
	}
	return flowAccount(u), nil
}
