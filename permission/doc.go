// Package permission implements the role/permission policy: a permission
// registry mapping names to bits of a 64-bit mask, and a leveled role table
// in which every role inherits the permissions of all roles at or below its
// level.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure. The only I/O is decoding a
// policy document supplied by the caller (see [LoadPolicyYAML]).
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import the root package, jwt, or session.
//   - Change the role table after construction.
package permission
