package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pipelinedash/authcore/password"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override what you need.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the signing secrets and token lifetimes. Access and
// refresh tokens must use different secrets.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the per-user cap and session storage. Sessions
// live for JWT.RefreshTTL after their last refresh.
type SessionConfig struct {
	MaxSessionsPerUser int
	RedisPrefix        string
	SweepInterval      time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

func (p PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:      p.Memory,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
	}
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig covers login throttling and refresh-token transport.
// Throttling is active only when a Redis client is configured.
type SecurityConfig struct {
	EnableLoginThrottle bool
	EnableIPThrottle    bool
	MaxLoginAttempts    int
	LoginCooldown       time.Duration

	RefreshCookieName string
	RefreshHeaderName string
	AccessHeaderName  string
	CookiePath        string
	CookieSecure      bool
	SameSite          http.SameSite
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Secrets are left empty and
// must be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	argon := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authcore",
			Leeway:     5 * time.Second,
		},
		Session: SessionConfig{
			MaxSessionsPerUser: 5,
			RedisPrefix:        "authcore",
			SweepInterval:      10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         argon.Memory,
			Time:           argon.Time,
			Parallelism:    argon.Parallelism,
			SaltLength:     argon.SaltLength,
			KeyLength:      argon.KeyLength,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			EnableLoginThrottle: true,
			EnableIPThrottle:    false,
			MaxLoginAttempts:    5,
			LoginCooldown:       15 * time.Minute,
			RefreshCookieName:   "refresh_token",
			RefreshHeaderName:   "X-Refresh-Token",
			AccessHeaderName:    "X-Access-Token",
			CookiePath:          "/auth",
			CookieSecure:        true,
			SameSite:            http.SameSiteStrictMode,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

const minSecretLength = 32

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) == 0 {
		return errors.New("JWT AccessSecret is required")
	}
	if len(c.JWT.RefreshSecret) == 0 {
		return errors.New("JWT RefreshSecret is required")
	}
	if len(c.JWT.AccessSecret) < minSecretLength {
		return fmt.Errorf("JWT AccessSecret must be at least %d bytes", minSecretLength)
	}
	if len(c.JWT.RefreshSecret) < minSecretLength {
		return fmt.Errorf("JWT RefreshSecret must be at least %d bytes", minSecretLength)
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.MaxSessionsPerUser < 1 {
		return errors.New("Session MaxSessionsPerUser must be >= 1")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.SweepInterval < 0 {
		return errors.New("Session SweepInterval must be >= 0")
	}

	// Password
	if err := password.ValidateConfig(c.Password.argon2()); err != nil {
		return fmt.Errorf("Password: %w", err)
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldown <= 0 {
			return errors.New("Security LoginCooldown must be > 0")
		}
	}
	if c.Security.RefreshCookieName == "" {
		return errors.New("Security RefreshCookieName must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
