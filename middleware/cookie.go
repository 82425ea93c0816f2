package middleware

import (
	"net/http"
	"time"

	"github.com/pipelinedash/authcore"
)

// RefreshToken returns the refresh token presented with r: the refresh
// cookie first, then the refresh header.
func RefreshToken(r *http.Request, cfg authcore.SecurityConfig) string {
	if c, err := r.Cookie(cfg.RefreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(cfg.RefreshHeaderName)
}

// SetRefreshCookie stores token in an HttpOnly cookie scoped to the auth
// routes.
func SetRefreshCookie(w http.ResponseWriter, cfg authcore.SecurityConfig, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.RefreshCookieName,
		Value:    token,
		Path:     cfg.CookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.SameSite,
	})
}

// ClearRefreshCookie expires the refresh cookie.
func ClearRefreshCookie(w http.ResponseWriter, cfg authcore.SecurityConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.RefreshCookieName,
		Value:    "",
		Path:     cfg.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.SameSite,
	})
}
