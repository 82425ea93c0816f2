package password

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type scheme int

const (
	schemeUnknown scheme = iota
	schemeArgon2
	schemeBcrypt
	schemeSHA512
)

func schemeOf(digest string) scheme {
	switch {
	case strings.HasPrefix(digest, "$"+algorithmID+"$"):
		return schemeArgon2
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return schemeBcrypt
	case len(digest) == sha512.Size*2 && isHex(digest):
		return schemeSHA512
	default:
		return schemeUnknown
	}
}

// LegacySHA512 computes the hex SHA-512 digest of password+salt used by
// records imported from the previous credential store. It exists for
// migration tooling and tests; new digests are always Argon2id.
func LegacySHA512(password, salt string) string {
	sum := sha512.Sum512([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func verifySHA512(password, salt, digest string) bool {
	want, err := hex.DecodeString(strings.ToLower(digest))
	if err != nil {
		return false
	}
	sum := sha512.Sum512([]byte(password + salt))
	return subtle.ConstantTimeCompare(sum[:], want) == 1
}

// bcrypt embeds its own salt, so the stored salt column is ignored.
func verifyBcrypt(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
