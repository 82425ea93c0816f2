package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pipelinedash/authcore/password"
)

// Config wires the store's policy.
type Config struct {
	Hasher            *password.Argon2
	MinPasswordLength int
	UpgradeOnLogin    bool
	DefaultRole       string
	ValidRole         func(string) bool
	Now               func() time.Time
}

// Store applies credential rules on top of a [Repository].
type Store struct {
	repo   Repository
	config Config

	dummySalt   string
	dummyDigest string
}

// NewStore validates cfg and prepares the digest used to equalize timing
// for unknown usernames.
func NewStore(repo Repository, cfg Config) (*Store, error) {
	if repo == nil {
		return nil, errors.New("account repository is required")
	}
	if cfg.Hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 8
	}
	if cfg.ValidRole == nil {
		cfg.ValidRole = func(role string) bool { return role != "" }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	salt, err := cfg.Hasher.NewSalt()
	if err != nil {
		return nil, err
	}
	digest, err := cfg.Hasher.Hash(uuid.NewString(), salt)
	if err != nil {
		return nil, err
	}

	return &Store{repo: repo, config: cfg, dummySalt: salt, dummyDigest: digest}, nil
}

// Repository returns the underlying repository.
func (s *Store) Repository() Repository { return s.repo }

// NormalizeIdentifier trims and lower-cases a username or email.
func NormalizeIdentifier(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.FindByUsername(ctx, NormalizeIdentifier(username))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeIdentifier(email)
	if email == "" {
		return nil, ErrNotFound
	}
	return s.repo.FindByEmail(ctx, email)
}

// FindByLogin resolves the identifier given at login: a username, or an
// email when no username matches and the identifier looks like one.
func (s *Store) FindByLogin(ctx context.Context, identifier string) (*User, error) {
	u, err := s.FindByUsername(ctx, identifier)
	if errors.Is(err, ErrNotFound) && strings.Contains(identifier, "@") {
		return s.FindByEmail(ctx, identifier)
	}
	return u, err
}

func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Store) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// Create validates nu, generates a fresh salt, hashes the password and
// stores an active user.
func (s *Store) Create(ctx context.Context, nu NewUser) (*User, error) {
	username := NormalizeIdentifier(nu.Username)
	if username == "" {
		return nil, ErrInvalidInput
	}
	email, err := normalizeEmail(nu.Email)
	if err != nil {
		return nil, err
	}
	role := strings.TrimSpace(nu.Role)
	if role == "" {
		role = s.config.DefaultRole
	}
	if !s.config.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	salt, digest, err := s.hash(nu.Password)
	if err != nil {
		return nil, err
	}

	now := s.config.Now()
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(nu.FullName),
		PasswordHash: digest,
		Salt:         salt,
		Role:         role,
		Status:       StatusActive,
		Created:      now,
		Updated:      now,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Update merges p into the stored user. The password is re-hashed with a
// new salt only when p.Password is set.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*User, Changes, error) {
	var changes Changes

	u, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, changes, err
	}

	if p.Username != nil {
		username := NormalizeIdentifier(*p.Username)
		if username == "" {
			return nil, changes, ErrInvalidInput
		}
		u.Username = username
	}
	if p.Email != nil {
		email, err := normalizeEmail(*p.Email)
		if err != nil {
			return nil, changes, err
		}
		u.Email = email
	}
	if p.FullName != nil {
		u.FullName = strings.TrimSpace(*p.FullName)
	}
	if p.Role != nil {
		role := strings.TrimSpace(*p.Role)
		if !s.config.ValidRole(role) {
			return nil, changes, ErrInvalidRole
		}
		changes.Role = role != u.Role
		u.Role = role
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, changes, ErrInvalidStatus
		}
		changes.Status = *p.Status != u.Status
		u.Status = *p.Status
	}
	if p.Password != nil {
		salt, digest, err := s.hash(*p.Password)
		if err != nil {
			return nil, changes, err
		}
		u.Salt = salt
		u.PasswordHash = digest
		changes.Password = true
	}

	u.Updated = s.config.Now()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, Changes{}, err
	}
	return u, changes, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// Authenticate verifies a username or email and a password. Unknown
// identifiers still pay for one hash verification. Every mismatch is
// ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, identifier, plaintext string) (*User, error) {
	u, err := s.FindByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = s.config.Hasher.Verify(plaintext, s.dummySalt, s.dummyDigest)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.config.Hasher.Verify(plaintext, u.Salt, u.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// VerifyPassword checks plaintext against the stored password of id. A
// mismatch is ErrInvalidCredentials.
func (s *Store) VerifyPassword(ctx context.Context, id, plaintext string) (*User, error) {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.config.Hasher.Verify(plaintext, u.Salt, u.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// UpgradeIfNeeded re-hashes the password of u when its digest uses a legacy
// scheme or weaker parameters. It reports whether an upgrade was stored.
func (s *Store) UpgradeIfNeeded(ctx context.Context, u *User, plaintext string) (bool, error) {
	if !s.config.UpgradeOnLogin || !s.config.Hasher.NeedsUpgrade(u.PasswordHash) {
		return false, nil
	}

	salt, err := s.config.Hasher.NewSalt()
	if err != nil {
		return false, err
	}
	digest, err := s.config.Hasher.Hash(plaintext, salt)
	if err != nil {
		return false, err
	}

	upgraded := u.Clone()
	upgraded.Salt = salt
	upgraded.PasswordHash = digest
	upgraded.Updated = s.config.Now()
	if err := s.repo.Update(ctx, upgraded); err != nil {
		return false, err
	}
	return true, nil
}

// RecordLogin stamps the user's last successful login.
func (s *Store) RecordLogin(ctx context.Context, id string) error {
	return s.repo.SetLastLogin(ctx, id, s.config.Now())
}

func (s *Store) hash(plaintext string) (string, string, error) {
	if len(plaintext) < s.config.MinPasswordLength {
		return "", "", ErrPasswordPolicy
	}
	salt, err := s.config.Hasher.NewSalt()
	if err != nil {
		return "", "", err
	}
	digest, err := s.config.Hasher.Hash(plaintext, salt)
	if err != nil {
		return "", "", err
	}
	return salt, digest, nil
}

func normalizeEmail(email string) (string, error) {
	email = NormalizeIdentifier(email)
	if email == "" {
		return "", nil
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", ErrInvalidInput
	}
	return email, nil
}
