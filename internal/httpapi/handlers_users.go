package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pipelinedash/authcore"
	"github.com/pipelinedash/authcore/middleware"
	"github.com/pipelinedash/authcore/permission"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Username *string          `json:"username"`
	Email    *string          `json:"email"`
	FullName *string          `json:"fullName"`
	Password *string          `json:"password"`
	Role     *string          `json:"role"`
	Status   *authcore.Status `json:"status"`
}

// selfService reports whether the patch only touches profile fields a user
// may change on their own account. Own passwords change through
// POST /auth/password, which checks the current one.
func (req updateUserRequest) selfService() bool {
	return req.Username == nil && req.Password == nil && req.Role == nil && req.Status == nil
}

func (req updateUserRequest) patch() authcore.UserPatch {
	return authcore.UserPatch{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Role:     req.Role,
		Status:   req.Status,
	}
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.engine.ListUsers(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = a.engine.Policy().Lowest()
	}
	if err := a.engine.AuthorizeUserAction(r.Context(), res, role); err != nil {
		middleware.WriteError(w, err)
		return
	}

	u, err := a.engine.CreateUser(r.Context(), authcore.NewUser{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"user": u})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "userID"))
	if id != res.User.ID {
		if err := a.engine.AuthorizePermission(r.Context(), res, permission.PermUsersRead); err != nil {
			middleware.WriteError(w, err)
			return
		}
	}

	u, err := a.engine.GetUserByID(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

// handleUpdateUser lets a user edit their own profile fields. Any other
// change needs users:manage over both the current and the requested role.
func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "userID"))
	if id != res.User.ID || !req.selfService() {
		target, err := a.engine.GetUserByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		if err := a.engine.AuthorizeUserAction(r.Context(), res, target.Role); err != nil {
			middleware.WriteError(w, err)
			return
		}
		if req.Role != nil && *req.Role != target.Role {
			if err := a.engine.AuthorizeUserAction(r.Context(), res, *req.Role); err != nil {
				middleware.WriteError(w, err)
				return
			}
		}
	}

	u, err := a.engine.UpdateUser(r.Context(), id, req.patch())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	res, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "userID"))
	if id == res.User.ID {
		middleware.WriteError(w, authcore.ErrForbidden)
		return
	}

	target, err := a.engine.GetUserByID(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := a.engine.AuthorizeUserAction(r.Context(), res, target.Role); err != nil {
		middleware.WriteError(w, err)
		return
	}

	n, err := a.engine.DeleteUser(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"sessionsRevoked": n})
}
