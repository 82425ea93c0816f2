// Package jwt issues and verifies the HS256 access and refresh tokens used by
// the authentication engine. Access and refresh tokens are signed with
// different secrets, so neither secret can mint the other kind of token.
package jwt
