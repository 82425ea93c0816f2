package authcore

import (
	"context"

	"github.com/pipelinedash/authcore/internal/audit"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginRateLimited   = "login_rate_limited"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshReuse       = "refresh_reuse_detected"
	auditEventSessionEvicted     = "session_evicted"
	auditEventLogoutSession      = "logout_session"
	auditEventInvalidateOthers   = "invalidate_other_sessions"
	auditEventInvalidateAll      = "invalidate_all_sessions"
	auditEventSessionRevoked     = "session_revoked"
	auditEventSessionsSwept      = "sessions_swept"
	auditEventUserCreated        = "user_created"
	auditEventUserUpdated        = "user_updated"
	auditEventUserDeleted        = "user_deleted"
	auditEventPasswordUpgraded   = "password_hash_upgraded"
	auditEventPasswordChanged    = "password_changed"
	auditEventAuthorizationError = "authorization_denied"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.NewEvent(eventType, e.now())
	event.UserID = userID
	event.SessionID = sessionID
	event.IP = clientIPFromContext(ctx)
	event.Success = success
	if err != nil {
		event.Error = string(CodeOf(err))
	}
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, event)
}
