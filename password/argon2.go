package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrInvalidDigest is returned when a stored digest cannot be parsed.
	ErrInvalidDigest = errors.New("invalid password digest")
	// ErrInvalidSalt is returned when a stored salt cannot be decoded.
	ErrInvalidSalt = errors.New("invalid password salt")
)

// Config holds the Argon2id cost parameters.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies passwords against a per-user salt.
type Argon2 struct {
	config Config
}

type parsedDigest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	hash        []byte
	keyLength   uint32
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg}, nil
}

// NewSalt returns a fresh random salt encoded for storage.
func (a *Argon2) NewSalt() (string, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(salt), nil
}

// Hash derives the digest of password under salt. The result is
// deterministic for a given salt and parameter set.
func (a *Argon2) Hash(password, salt string) (string, error) {
	rawSalt, err := decodeSalt(salt)
	if err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		rawSalt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify reports whether password matches digest under salt. Legacy bcrypt
// and SHA-512 digests are accepted as well. Comparison is constant time.
func (a *Argon2) Verify(password, salt, digest string) (bool, error) {
	switch schemeOf(digest) {
	case schemeBcrypt:
		return verifyBcrypt(password, digest), nil
	case schemeSHA512:
		return verifySHA512(password, salt, digest), nil
	case schemeArgon2:
	default:
		return false, ErrInvalidDigest
	}

	parsed, err := parseDigest(digest)
	if err != nil {
		return false, err
	}
	rawSalt, err := decodeSalt(salt)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		rawSalt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether digest should be replaced by a fresh hash
// under the current parameters.
func (a *Argon2) NeedsUpgrade(digest string) bool {
	if schemeOf(digest) != schemeArgon2 {
		return true
	}
	parsed, err := parseDigest(digest)
	if err != nil {
		return true
	}

	if a.config.Memory > parsed.memory {
		return true
	}
	if a.config.Time > parsed.time {
		return true
	}
	if a.config.Parallelism > parsed.parallelism {
		return true
	}
	if a.config.KeyLength != parsed.keyLength {
		return true
	}

	return false
}

func decodeSalt(salt string) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return nil, ErrInvalidSalt
	}
	if len(raw) < int(minSaltLength) {
		return nil, ErrInvalidSalt
	}
	return raw, nil
}

func parseDigest(digest string) (*parsedDigest, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 5 || parts[0] != "" {
		return nil, ErrInvalidDigest
	}

	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	versionPart := parts[2]
	if !strings.HasPrefix(versionPart, "v=") {
		return nil, errors.New("missing argon2 version")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(versionPart, "v="))
	if err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(hash) == 0 {
		return nil, errors.New("invalid hash length")
	}

	return &parsedDigest{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		hash:        hash,
		keyLength:   uint32(len(hash)),
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, errors.New("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, errors.New("missing parameters")
	}

	return &params, nil
}

// ValidateConfig checks cfg against the minimum accepted cost parameters.
func ValidateConfig(cfg Config) error {
	return validateConfig(cfg)
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}

	return nil
}
