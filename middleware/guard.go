package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/pipelinedash/authcore"
)

// Authenticate returns middleware that authenticates the bearer token of
// each request and stores the result with [authcore.WithAuthResult].
//
// An expired access token is refreshed with the refresh token presented in
// the refresh header or cookie. On success the new access token is returned
// in the access header and the refresh cookie is rotated.
func Authenticate(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authcore.ErrEngineNotReady)
				return
			}

			token, err := BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := WithRequestMetadata(r)
			cfg := engine.SecurityConfig()
			res, err := engine.AuthenticateOrRefresh(ctx, token, RefreshToken(r, cfg))
			if err != nil {
				WriteError(w, err)
				return
			}

			if res.Refreshed != nil {
				w.Header().Set(cfg.AccessHeaderName, res.Refreshed.AccessToken)
				SetRefreshCookie(w, cfg, res.Refreshed.RefreshToken, res.Refreshed.RefreshExpiresAt)
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithAuthResult(ctx, res)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, error) {
	if value == "" {
		return "", authcore.ErrMissingToken
	}

	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", authcore.ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", authcore.ErrMalformedHeader
	}
	return token, nil
}

// WithRequestMetadata returns the request context carrying the client IP
// and User-Agent.
func WithRequestMetadata(r *http.Request) context.Context {
	ctx := authcore.WithClientIP(r.Context(), ClientIP(r))
	return authcore.WithUserAgent(ctx, r.UserAgent())
}

// ClientIP returns the host part of the request's remote address. Proxy
// headers are honored only when a trusted proxy middleware has already
// rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
