// Package session owns the server-side session records that bind a user, the
// current refresh token and client metadata.
//
// # Backends
//
// [Repository] is implemented by [MemoryRepository] (tests, single process),
// [RedisRepository] (production, per-record hashes updated by Lua scripts) and
// [CachedRepository] (an in-memory mirror in front of a durable repository,
// reconciled with [CachedRepository.Reload] at startup).
//
// Every mutating operation is atomic per record. The per-user cap is enforced
// inside the same atomic step that inserts the new session, and refresh
// rotation is a compare-and-swap on the stored refresh hash.
//
// # Architecture boundaries
//
// This package does NOT interpret JWT tokens, evaluate permissions, or enforce
// authentication policy; those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import the root package, jwt, or permission (no upward imports).
//   - Store plaintext refresh tokens; only their SHA-256 is persisted.
package session
