package authcore

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned when the user's status is not active.
	ErrAccountInactive = errors.New("account inactive")
	// ErrDuplicateUsername is returned when the username is taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrDuplicateEmail is returned when the email is taken.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing token")
	// ErrMalformedHeader is returned when the Authorization header is not "Bearer <token>".
	ErrMalformedHeader = errors.New("malformed authorization header")
	// ErrTokenExpired is returned for an authentic access token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned when a token fails signature or structure checks.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrSessionNotFound is returned when the token's session no longer exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenInvalid is returned for invalid, reused, expired or mis-bound refresh tokens.
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
	// ErrForbidden is returned when the caller's role or permissions are insufficient.
	ErrForbidden = errors.New("forbidden")
	// ErrUserNotFound is returned when no user has the given id.
	ErrUserNotFound = errors.New("user not found")

	ErrPasswordPolicy   = errors.New("password does not meet policy")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidInput     = errors.New("invalid input")
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrUnavailable is returned when a backing store fails. Requests fail closed.
	ErrUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorCode is the stable machine-readable form of an engine error.
type ErrorCode string

const (
	CodeInvalidCredentials ErrorCode = "invalid_credentials"
	CodeAccountInactive    ErrorCode = "account_inactive"
	CodeDuplicateUsername  ErrorCode = "duplicate_username"
	CodeDuplicateEmail     ErrorCode = "duplicate_email"
	CodeMissingToken       ErrorCode = "missing_token"
	CodeMalformedHeader    ErrorCode = "malformed_header"
	CodeTokenExpired       ErrorCode = "token_expired"
	CodeTokenMalformed     ErrorCode = "token_malformed"
	CodeSessionNotFound    ErrorCode = "session_not_found"
	CodeRefreshInvalid     ErrorCode = "refresh_token_invalid"
	CodeForbidden          ErrorCode = "forbidden"
	CodeUserNotFound       ErrorCode = "user_not_found"
	CodePasswordPolicy     ErrorCode = "password_policy"
	CodeInvalidRole        ErrorCode = "invalid_role"
	CodeInvalidStatus      ErrorCode = "invalid_status"
	CodeInvalidInput       ErrorCode = "invalid_input"
	CodeRateLimited        ErrorCode = "rate_limited"
	CodeUnavailable        ErrorCode = "backend_unavailable"
	CodeInternal           ErrorCode = "internal_error"
)

type errorInfo struct {
	err    error
	code   ErrorCode
	status int
}

var errorTable = []errorInfo{
	{ErrInvalidCredentials, CodeInvalidCredentials, http.StatusUnauthorized},
	{ErrAccountInactive, CodeAccountInactive, http.StatusForbidden},
	{ErrDuplicateUsername, CodeDuplicateUsername, http.StatusConflict},
	{ErrDuplicateEmail, CodeDuplicateEmail, http.StatusConflict},
	{ErrMissingToken, CodeMissingToken, http.StatusUnauthorized},
	{ErrMalformedHeader, CodeMalformedHeader, http.StatusUnauthorized},
	{ErrTokenExpired, CodeTokenExpired, http.StatusUnauthorized},
	{ErrTokenMalformed, CodeTokenMalformed, http.StatusUnauthorized},
	{ErrSessionNotFound, CodeSessionNotFound, http.StatusUnauthorized},
	{ErrRefreshTokenInvalid, CodeRefreshInvalid, http.StatusUnauthorized},
	{ErrForbidden, CodeForbidden, http.StatusForbidden},
	{ErrUserNotFound, CodeUserNotFound, http.StatusNotFound},
	{ErrPasswordPolicy, CodePasswordPolicy, http.StatusBadRequest},
	{ErrInvalidRole, CodeInvalidRole, http.StatusBadRequest},
	{ErrInvalidStatus, CodeInvalidStatus, http.StatusBadRequest},
	{ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest},
	{ErrLoginRateLimited, CodeRateLimited, http.StatusTooManyRequests},
	{ErrUnavailable, CodeUnavailable, http.StatusServiceUnavailable},
}

// CodeOf maps err to its stable code. Errors outside the taxonomy map to
// CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, info := range errorTable {
		if errors.Is(err, info.err) {
			return info.code
		}
	}
	return CodeInternal
}

// StatusOf maps err to an HTTP status. Errors outside the taxonomy map to 500.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, info := range errorTable {
		if errors.Is(err, info.err) {
			return info.status
		}
	}
	return http.StatusInternalServerError
}

// MessageOf returns a message safe to show a client. Unknown errors never
// surface their text.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	for _, info := range errorTable {
		if errors.Is(err, info.err) {
			return info.err.Error()
		}
	}
	return "internal error"
}
