package flows

import "context"

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	VerifyAccess      func(token string) (AccessClaims, error)
	InvalidateSession func(ctx context.Context, sessionID string) (bool, error)
}

type LogoutResult struct {
	UserID    string
	SessionID string
	Removed   bool
	Err       error
}

// RunLogoutByAccessToken invalidates the session named by a valid access
// token.
func RunLogoutByAccessToken(ctx context.Context, token string, deps LogoutDeps) LogoutResult {
	claims, err := deps.VerifyAccess(token)
	if err != nil {
		return LogoutResult{Err: err}
	}

	removed, err := deps.InvalidateSession(ctx, claims.SessionID)
	return LogoutResult{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		Removed:   removed,
		Err:       err,
	}
}
