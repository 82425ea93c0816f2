package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pipelinedash/authcore"
	"github.com/pipelinedash/authcore/middleware"
	"github.com/pipelinedash/authcore/permission"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken     string    `json:"accessToken"`
	SessionID       string    `json:"sessionId"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

type meResponse struct {
	User        authcore.User `json:"user"`
	SessionID   string        `json:"sessionId"`
	Permissions []string      `json:"permissions"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	res, err := a.engine.Login(middleware.WithRequestMetadata(r), authcore.LoginRequest{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.SetRefreshCookie(w, a.engine.SecurityConfig(), res.RefreshToken, res.RefreshExpiresAt)
	middleware.WriteJSON(w, http.StatusOK, res)
}

// handleRefresh reads the refresh token from the cookie, the refresh
// header, or a JSON body, in that order.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cfg := a.engine.SecurityConfig()

	token := middleware.RefreshToken(r, cfg)
	if token == "" && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, err)
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		middleware.WriteError(w, authcore.ErrMissingToken)
		return
	}

	pair, err := a.engine.Refresh(middleware.WithRequestMetadata(r), token)
	if err != nil {
		if authcore.StatusOf(err) == http.StatusUnauthorized {
			middleware.ClearRefreshCookie(w, cfg)
		}
		middleware.WriteError(w, err)
		return
	}

	middleware.SetRefreshCookie(w, cfg, pair.RefreshToken, pair.RefreshExpiresAt)
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:     pair.AccessToken,
		SessionID:       pair.SessionID,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := a.engine.Logout(r.Context(), res.SessionID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.ClearRefreshCookie(w, a.engine.SecurityConfig())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, meResponse{
		User:        res.User,
		SessionID:   res.SessionID,
		Permissions: res.Permissions,
	})
}

// handleListSessions lists the caller's sessions, or another user's when
// ?userId= is given and the caller holds sessions:manage.
func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" || userID == res.User.ID {
		userID = res.User.ID
	} else if err := a.engine.AuthorizePermission(r.Context(), res, permission.PermSessionsManage); err != nil {
		middleware.WriteError(w, err)
		return
	}

	sessions, err := a.engine.GetUserSessions(r.Context(), userID, res.SessionID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *API) handleInvalidateOthers(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	n, err := a.engine.InvalidateOtherSessions(r.Context(), res.User.ID, res.SessionID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"invalidated": n})
}

// handleChangePassword changes the caller's own password. Other sessions
// are signed out; the current one keeps working.
func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		middleware.WriteError(w, authcore.ErrInvalidInput)
		return
	}

	n, err := a.engine.ChangePassword(r.Context(), res, req.CurrentPassword, req.NewPassword)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"sessionsRevoked": n})
}

func (a *API) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if err := a.engine.RevokeSession(r.Context(), res, sessionID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if sessionID == res.SessionID {
		middleware.ClearRefreshCookie(w, a.engine.SecurityConfig())
	}
	w.WriteHeader(http.StatusNoContent)
}
