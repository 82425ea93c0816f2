package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pipelinedash/authcore/internal"
	"github.com/pipelinedash/authcore/permission"
	"github.com/pipelinedash/authcore/session"
)

// GetUserSessions lists the live sessions of userID, most recently active
// first. The session equal to currentSessionID is flagged Current.
func (e *Engine) GetUserSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	sessions, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("session listing failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ID:         s.ID,
			IP:         s.IP,
			UserAgent:  s.UserAgent,
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActive,
			ExpiresAt:  s.ExpiresAt,
			Current:    s.ID == currentSessionID,
		})
	}
	return out, nil
}

// InvalidateOtherSessions removes every session of userID except
// currentSessionID and returns how many were removed.
func (e *Engine) InvalidateOtherSessions(ctx context.Context, userID, currentSessionID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if currentSessionID == "" {
		return 0, ErrSessionNotFound
	}

	removed, err := e.sessions.InvalidateAllExcept(ctx, userID, currentSessionID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("invalidate other sessions failed")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metrics.Add(MetricSessionInvalidated, uint64(removed))
	e.emitAudit(ctx, auditEventInvalidateOthers, true, userID, currentSessionID, nil, func() map[string]string {
		return map[string]string{"removed": strconv.Itoa(removed)}
	})
	return removed, nil
}

// InvalidateAllSessions removes every session of userID.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	removed, err := e.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("invalidate all sessions failed")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metrics.Add(MetricSessionInvalidated, uint64(removed))
	e.emitAudit(ctx, auditEventInvalidateAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"removed": strconv.Itoa(removed)}
	})
	return removed, nil
}

// RevokeSession removes sessionID on behalf of caller. Callers may revoke
// their own sessions; revoking someone else's needs sessions:manage.
// Unknown sessions and sessions the caller may not see both report
// ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, caller *AuthResult, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if caller == nil {
		return ErrForbidden
	}

	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		e.logger.Error().Err(err).Str("session", internal.ShortID(sessionID)).Msg("session lookup failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if s.UserID != caller.User.ID && !e.policy.HasPermission(caller.User.Role, permission.PermSessionsManage) {
		return ErrSessionNotFound
	}

	removed, err := e.sessions.Invalidate(ctx, sessionID)
	if err != nil {
		e.logger.Error().Err(err).Str("session", internal.ShortID(sessionID)).Msg("session revoke failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if removed {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventSessionRevoked, true, s.UserID, sessionID, nil, func() map[string]string {
		return map[string]string{"revoked_by": caller.User.ID}
	})
	return nil
}

// SweepExpiredSessions removes sessions past their absolute expiry.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	removed, err := e.sessions.SweepExpired(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("session sweep failed")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if removed > 0 {
		e.metrics.Add(MetricSessionsSwept, uint64(removed))
		e.emitAudit(ctx, auditEventSessionsSwept, true, "", "", nil, func() map[string]string {
			return map[string]string{"removed": strconv.Itoa(removed)}
		})
	}
	return removed, nil
}

// StartSweeper runs SweepExpiredSessions every interval until ctx is done.
// A zero interval falls back to Session.SweepInterval; if that is zero too
// no loop is started. The returned channel is closed when the loop exits.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		interval = e.config.Session.SweepInterval
	}
	if interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := e.SweepExpiredSessions(ctx); err == nil && n > 0 {
					e.logger.Debug().Int("removed", n).Msg("expired sessions swept")
				}
			}
		}
	}()
	return done
}

// ReloadSessionCache rebuilds the in-memory session mirror from the durable
// store. It is a no-op when no cache is configured.
func (e *Engine) ReloadSessionCache(ctx context.Context) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	n, err := e.cache.Reload(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("session cache reload failed")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.logger.Info().Int("sessions", n).Msg("session cache reloaded")
	return n, nil
}
