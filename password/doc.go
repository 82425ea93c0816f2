// Package password implements salted password hashing and verification with
// Argon2id defaults.
//
// # Output format
//
// The salt is generated per user and stored beside the digest, so digests omit it:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<hash>
//
// Digests produced by older schemes (bcrypt, hex SHA-512 over password+salt)
// still verify. [Argon2.NeedsUpgrade] reports them, together with argon2
// digests produced with weaker parameters, so the caller can re-hash on the
// next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the account store.
package password
