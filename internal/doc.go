// Package internal holds helpers private to authcore: session identifiers
// and refresh-token hashing.
//
// # Sub-packages
//
//   - audit: event model, async dispatcher and sinks
//   - config: environment and .env loading for the server
//   - flows: login, refresh, authenticate and logout orchestration
//   - httpapi: the chi router served by `authcore serve`
//   - logging: zerolog construction
//   - rate: Redis-backed login throttling
package internal
