package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pipelinedash/authcore/account"
	"github.com/pipelinedash/authcore/internal"
	"github.com/pipelinedash/authcore/internal/audit"
	"github.com/pipelinedash/authcore/internal/flows"
	"github.com/pipelinedash/authcore/internal/rate"
	"github.com/pipelinedash/authcore/jwt"
	"github.com/pipelinedash/authcore/permission"
	"github.com/pipelinedash/authcore/session"
)

// Engine is the authentication core: credential checks, token issue and
// verification, the session lifecycle and RBAC decisions. It is safe for
// concurrent use once built.
type Engine struct {
	config   Config
	policy   *permission.Policy
	sessions *session.Manager
	cache    *session.CachedRepository
	users    *account.Store
	tokens   *jwt.Manager
	limiter  *rate.Limiter
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time
	flows    flows.Service
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// SecurityConfig returns the cookie, header and throttle settings. It is
// cheap enough for per-request use and copies no secrets.
func (e *Engine) SecurityConfig() SecurityConfig {
	return e.config.Security
}

// Policy returns the role policy in use.
func (e *Engine) Policy() *permission.Policy {
	return e.policy
}

// AuditDropped returns the number of audit events dropped on overflow.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Login verifies credentials and opens a session. When the user already
// holds MaxSessionsPerUser sessions, the least recently active ones are
// evicted and listed in the result.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}
	ctx = WithClientIP(ctx, req.IP)

	res := e.flows.Login(ctx, flows.LoginRequest{
		Username:  req.Username,
		Password:  req.Password,
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
	req.Password = ""

	if res.Failure != flows.LoginFailureNone {
		err := e.loginError(res)
		if errors.Is(err, ErrLoginRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, func() map[string]string {
				return map[string]string{"identifier": req.Username}
			})
			return nil, err
		}
		if errors.Is(err, ErrAccountInactive) {
			e.metricInc(MetricLoginInactive)
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.Account.ID, res.SessionID, err, func() map[string]string {
			return map[string]string{"identifier": req.Username, "reason": loginReason(res.Failure)}
		})
		return nil, err
	}

	u := res.Account.Record.(*account.User)
	if err := e.users.RecordLogin(ctx, u.ID); err != nil {
		e.logger.Warn().Err(err).Str("user_id", u.ID).Msg("last login update failed")
	} else {
		at := e.now()
		u.LastLogin = &at
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, u.ID, res.SessionID, nil, nil)
	for _, evicted := range res.Evicted {
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, auditEventSessionEvicted, true, u.ID, evicted, nil, func() map[string]string {
			return map[string]string{"reason": "session_cap", "new_session": internal.ShortID(res.SessionID)}
		})
	}
	if len(res.Evicted) > 0 {
		e.logger.Info().
			Str("user_id", u.ID).
			Int("evicted", len(res.Evicted)).
			Msg("session cap reached, evicted least recently active sessions")
	}

	now := e.now()
	return &LoginResult{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		SessionID:        res.SessionID,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: now.Add(e.config.JWT.RefreshTTL),
		User:             e.publicUser(u),
		EvictedSessions:  res.Evicted,
	}, nil
}

func (e *Engine) loginError(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureRateLimited:
		return ErrLoginRateLimited
	case flows.LoginFailureCredentials:
		return ErrInvalidCredentials
	case flows.LoginFailureInactive:
		return ErrAccountInactive
	case flows.LoginFailureLimiterBackend, flows.LoginFailureLookup, flows.LoginFailureSession:
		e.logger.Error().Err(res.Err).Msg("login storage failure")
		return fmt.Errorf("%w: %v", ErrUnavailable, res.Err)
	default:
		e.logger.Error().Err(res.Err).Msg("login token issue failure")
		return fmt.Errorf("login: %w", res.Err)
	}
}

func loginReason(kind flows.LoginFailureKind) string {
	switch kind {
	case flows.LoginFailureCredentials:
		return "invalid_credentials"
	case flows.LoginFailureInactive:
		return "account_status"
	case flows.LoginFailureLimiterBackend:
		return "throttle_backend"
	case flows.LoginFailureLookup:
		return "user_lookup"
	case flows.LoginFailureSession:
		return "session_store"
	case flows.LoginFailureSessionID:
		return "session_id_generation"
	default:
		return "token_issue"
	}
}

// Refresh exchanges a refresh token for a new token pair and rotates the
// session's stored refresh token. Any failure that identifies a session
// invalidates that session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.refresh(ctx, refreshToken, "")
}

func (e *Engine) refresh(ctx context.Context, refreshToken, boundSessionID string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenInvalid
	}

	res := e.flows.Refresh(ctx, refreshToken, boundSessionID)
	if res.Failure != flows.RefreshFailureNone {
		err := e.refreshError(res)
		e.metricInc(MetricRefreshFailure)
		event := auditEventRefreshInvalid
		if res.Failure == flows.RefreshFailureReuse {
			e.metricInc(MetricRefreshReuseDetected)
			event = auditEventRefreshReuse
			e.logger.Warn().
				Str("session", internal.ShortID(res.SessionID)).
				Str("user_id", res.Account.ID).
				Msg("refresh token reuse detected, session invalidated")
		}
		e.emitAudit(ctx, event, false, res.Account.ID, res.SessionID, err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Account.ID, res.SessionID, nil, nil)

	now := e.now()
	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		SessionID:        res.SessionID,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	}, nil
}

func (e *Engine) refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureInactive:
		return ErrAccountInactive
	case flows.RefreshFailureBackend:
		e.logger.Error().Err(res.Err).Str("session", internal.ShortID(res.SessionID)).Msg("refresh storage failure")
		return fmt.Errorf("%w: %v", ErrUnavailable, res.Err)
	case flows.RefreshFailureIssue:
		e.logger.Error().Err(res.Err).Msg("refresh token issue failure")
		return fmt.Errorf("refresh: %w", res.Err)
	default:
		return ErrRefreshTokenInvalid
	}
}

// InvalidateSession removes a session. It is idempotent.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return nil
	}

	removed, err := e.sessions.Invalidate(ctx, sessionID)
	if err != nil {
		e.logger.Error().Err(err).Str("session", internal.ShortID(sessionID)).Msg("session invalidation failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if removed {
		e.metricInc(MetricSessionInvalidated)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// Logout is an alias for [Engine.InvalidateSession].
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	return e.InvalidateSession(ctx, sessionID)
}

// LogoutByAccessToken invalidates the session named by a valid access token.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.LogoutByAccessToken(ctx, accessToken)
	if res.Err != nil {
		switch {
		case errors.Is(res.Err, jwt.ErrExpired):
			return ErrTokenExpired
		case errors.Is(res.Err, jwt.ErrMalformed):
			return ErrTokenMalformed
		default:
			e.logger.Error().Err(res.Err).Str("session", internal.ShortID(res.SessionID)).Msg("logout failed")
			return fmt.Errorf("%w: %v", ErrUnavailable, res.Err)
		}
	}

	if res.Removed {
		e.metricInc(MetricSessionInvalidated)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.UserID, res.SessionID, nil, nil)
	return nil
}

func (e *Engine) publicUser(u *account.User) User {
	out := User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		Status:   u.Status,
		IsAdmin:  u.Role == e.policy.Highest(),
		Created:  u.Created,
		Updated:  u.Updated,
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		out.LastLogin = &t
	}
	return out
}

func flowAccount(u *account.User) flows.Account {
	return flows.Account{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Active:   u.Status == account.StatusActive,
		Record:   u,
	}
}

func (e *Engine) warn(msg string, kv ...any) {
	e.logger.Warn().Fields(kv).Msg(msg)
}
