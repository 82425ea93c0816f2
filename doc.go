// Package authcore is the authentication and session core of the pipeline
// dashboard: credential checks, HS256 access and refresh tokens, server-side
// sessions with a per-user cap and refresh rotation, and leveled RBAC.
//
// An [Engine] is assembled with [Builder] and is safe for concurrent use by
// many goroutines once built.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([User], [SessionInfo], [AuthResult], [MetricsSnapshot]).
// Flow orchestration, login throttling and audit dispatch live under
// internal/. Storage backends are pluggable through [session.Repository]
// and [account.Repository].
//
// # Failure model
//
// Every error returned by an Engine method matches one of the sentinels in
// errors.go under errors.Is, and [CodeOf] / [StatusOf] give its stable code
// and HTTP status. Storage failures on an authentication path are reported
// as [ErrUnavailable] and deny the request. A failed refresh invalidates the
// session it names.
//
// # What this package must NOT do
//
//   - Return password digests, salts or refresh-token hashes from any method.
//   - Log secrets, passwords or tokens.
//   - Import middleware, internal/httpapi or cmd (no import cycles).
package authcore
