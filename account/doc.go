// Package account is the credential store: user records with salted password
// digests, roles and account status.
//
// [Store] applies the domain rules (normalization, uniqueness, hashing,
// merge updates) on top of a [Repository]. Two repositories are provided:
// [MemoryRepository] for tests and single-process use, and
// [PostgresRepository] for production, whose schema is managed by the
// embedded goose migrations (see [Migrate]).
//
// Password digests and salts never leave this package through the [Store]
// API other than on the [User] record itself, which callers must not expose.
package account
