package middleware

import (
	"net/http"

	"github.com/pipelinedash/authcore"
)

// RequireRole rejects requests whose authenticated user's live role is below
// role. It must run after [Authenticate].
func RequireRole(engine *authcore.Engine, role string) func(http.Handler) http.Handler {
	return authorizeWith(func(r *http.Request, res *authcore.AuthResult) error {
		return engine.Authorize(r.Context(), res, role)
	})
}

// RequirePermission rejects requests whose authenticated user does not
// effectively hold perm. It must run after [Authenticate].
func RequirePermission(engine *authcore.Engine, perm string) func(http.Handler) http.Handler {
	return authorizeWith(func(r *http.Request, res *authcore.AuthResult) error {
		return engine.AuthorizePermission(r.Context(), res, perm)
	})
}

func authorizeWith(check func(*http.Request, *authcore.AuthResult) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := authcore.AuthResultFromContext(r.Context())
			if !ok {
				WriteError(w, authcore.ErrMissingToken)
				return
			}
			if err := check(r, res); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
