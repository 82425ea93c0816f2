// Package middleware adapts the authcore engine to net/http.
//
// # Handlers
//
//   - [Authenticate] reads the bearer token, refreshes an expired one with
//     the presented refresh token, and stores the [authcore.AuthResult] on
//     the request context.
//   - [RequireRole] and [RequirePermission] authorize against the live role.
//
// Failures are written as {"error":{"code","message"}} with the status
// given by [authcore.StatusOf].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// parse tokens or touch session storage; every decision is delegated to the
// Engine.
package middleware
