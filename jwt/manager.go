package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

var (
	// ErrExpired is returned when a token's signature is valid but its expiry has passed.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned for tokens that fail structural, signature or claim checks.
	ErrMalformed = errors.New("token malformed")
)

// Config holds signing secrets and token lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Identity is the subject an access token is minted for.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	UserID    string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token. The random ID
// (jti) keeps two rotations within the same second distinct.
type RefreshClaims struct {
	UserID    string `json:"id"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. It is safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < minSecretBytes {
		return nil, fmt.Errorf("access secret must be at least %d bytes", minSecretBytes)
	}
	if len(cfg.RefreshSecret) < minSecretBytes {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", minSecretBytes)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess mints an access token for id bound to sessionID.
func (m *Manager) IssueAccess(id Identity, sessionID string) (string, error) {
	now := m.config.Now()
	claims := AccessClaims{
		UserID:           id.UserID,
		Username:         id.Username,
		Role:             id.Role,
		SessionID:        sessionID,
		RegisteredClaims: m.registered(now, m.config.AccessTTL, ""),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessSecret)
}

// IssueRefresh mints a refresh token for userID bound to sessionID.
func (m *Manager) IssueRefresh(userID, sessionID string) (string, error) {
	now := m.config.Now()
	claims := RefreshClaims{
		UserID:           userID,
		SessionID:        sessionID,
		RegisteredClaims: m.registered(now, m.config.RefreshTTL, uuid.NewString()),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshSecret)
}

// VerifyAccess checks signature, expiry, issuer and audience of an access token.
// It returns ErrExpired or ErrMalformed on failure.
func (m *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token. When the token is authentic but
// expired, the decoded claims are returned together with ErrExpired so the
// caller can act on the session it names.
func (m *Manager) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	err := m.parse(tokenStr, claims, m.config.RefreshSecret)
	if err != nil && !errors.Is(err, ErrExpired) {
		return nil, err
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrMalformed
	}
	return claims, err
}

// DecodeUnverified returns the access claims of tokenStr without checking
// its signature or expiry. The result must not be used for authorization.
func (m *Manager) DecodeUnverified(tokenStr string) *AccessClaims {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil
	}
	return claims
}

func (m *Manager) registered(now time.Time, ttl time.Duration, id string) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    m.config.Issuer,
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		// Claims are validated only after the signature, so an expiry
		// error implies the token is authentic.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrMalformed
	}
	if !token.Valid {
		return ErrMalformed
	}

	iat, err := claims.GetIssuedAt()
	if err == nil && iat != nil {
		if iat.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
			return ErrMalformed
		}
	}

	return nil
}
