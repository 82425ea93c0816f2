// Package config loads process configuration from the environment and an
// optional .env file and converts it into the engine configuration.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/pipelinedash/authcore"
)

// Config holds runtime configuration for the authcore server.
type Config struct {
	Addr        string `env:"AUTH_ADDR,default=:8080"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET,required"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL,default=1h"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`
	TokenIssuer        string        `env:"TOKEN_ISSUER,default=authcore"`

	MaxSessionsPerUser   int           `env:"MAX_SESSIONS_PER_USER,default=5"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL,default=10m"`
	SessionCache         bool          `env:"SESSION_CACHE,default=false"`
	RBACPolicyFile       string        `env:"RBAC_POLICY_FILE"`

	OTelMetricsEndpoint string        `env:"OTEL_METRICS_ENDPOINT"`
	OTelMetricsInterval time.Duration `env:"OTEL_METRICS_INTERVAL,default=30s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	NATSURL      string `env:"NATS_URL"`
	AuditSubject string `env:"AUDIT_SUBJECT,default=authcore.audit"`
	AuditLog     bool   `env:"AUDIT_LOG,default=true"`

	AllowedOrigins     []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	CookieSecure       bool     `env:"COOKIE_SECURE,default=true"`
	LoginRatePerMinute int      `env:"LOGIN_RATE_PER_MINUTE,default=20"`
	MaxLoginAttempts   int      `env:"MAX_LOGIN_ATTEMPTS,default=5"`

	SeedDefaultUsers bool `env:"SEED_DEFAULT_USERS,default=false"`
}

// Load reads an optional .env file (existing variables win) and then the
// process environment.
func Load(ctx context.Context, envFiles ...string) (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(envFiles...)
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration through l.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// ToEngineConfig converts the process configuration into an engine
// configuration built on the engine defaults.
func (c Config) ToEngineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()

	cfg.JWT.AccessSecret = []byte(c.AccessTokenSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshTokenSecret)
	cfg.JWT.AccessTTL = c.AccessTokenTTL
	cfg.JWT.RefreshTTL = c.RefreshTokenTTL
	cfg.JWT.Issuer = c.TokenIssuer

	cfg.Session.MaxSessionsPerUser = c.MaxSessionsPerUser
	cfg.Session.SweepInterval = c.SessionSweepInterval

	cfg.Security.CookieSecure = c.CookieSecure
	if c.MaxLoginAttempts > 0 {
		cfg.Security.MaxLoginAttempts = c.MaxLoginAttempts
	}

	cfg.Audit.Enabled = c.AuditLog || c.NATSURL != ""
	return cfg
}
