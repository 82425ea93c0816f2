package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pipelinedash/authcore/account"
	"github.com/pipelinedash/authcore/internal/audit"
	"github.com/pipelinedash/authcore/internal/rate"
	"github.com/pipelinedash/authcore/jwt"
	"github.com/pipelinedash/authcore/password"
	"github.com/pipelinedash/authcore/permission"
	"github.com/pipelinedash/authcore/session"
)

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessionRepo  session.Repository
	sessionCache bool
	userRepo     account.Repository
	policy       *permission.Policy
	auditSink    AuditSink
	logger       zerolog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for Redis-backed sessions (unless a
// repository is supplied explicitly) and for the login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionRepository overrides the session backend.
func (b *Builder) WithSessionRepository(repo session.Repository) *Builder {
	b.sessionRepo = repo
	return b
}

// WithSessionCache puts an in-memory mirror in front of the session backend.
// Call [Engine.ReloadSessionCache] at startup to populate it.
func (b *Builder) WithSessionCache(enabled bool) *Builder {
	b.sessionCache = enabled
	return b
}

// WithUserRepository overrides the credential backend. The default is an
// in-memory repository.
func (b *Builder) WithUserRepository(repo account.Repository) *Builder {
	b.userRepo = repo
	return b
}

// WithRolePolicy overrides the role table. The default is
// [permission.DefaultRoles].
func (b *Builder) WithRolePolicy(p *permission.Policy) *Builder {
	b.policy = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for tokens, sessions and users.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- ROLE POLICY --------
	policy := b.policy
	if policy == nil {
		p, err := permission.NewPolicy(permission.DefaultRoles())
		if err != nil {
			return nil, err
		}
		policy = p
	}

	// -------- SESSIONS --------
	repo := b.sessionRepo
	if repo == nil {
		if b.redis != nil {
			repo = session.NewRedisRepository(b.redis, cfg.Session.RedisPrefix)
		} else {
			repo = session.NewMemoryRepository()
		}
	}
	var cache *session.CachedRepository
	if b.sessionCache {
		cache = session.NewCachedRepository(repo)
		repo = cache
	}
	sessions, err := session.NewManager(repo, session.Config{
		MaxPerUser: cfg.Session.MaxSessionsPerUser,
		Lifetime:   cfg.JWT.RefreshTTL,
		Now:        now,
		Logger:     b.logger.With().Str("component", "sessions").Logger(),
	})
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIALS --------
	hasher, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}
	userRepo := b.userRepo
	if userRepo == nil {
		userRepo = account.NewMemoryRepository()
	}
	users, err := account.NewStore(userRepo, account.Config{
		Hasher:            hasher,
		MinPasswordLength: cfg.Password.MinLength,
		UpgradeOnLogin:    cfg.Password.UpgradeOnLogin,
		DefaultRole:       policy.Lowest(),
		ValidRole:         policy.Valid,
		Now:               now,
	})
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		policy:   policy,
		sessions: sessions,
		cache:    cache,
		users:    users,
		tokens:   tokens,
		logger:   b.logger.With().Str("component", "authcore").Logger(),
		now:      now,
		metrics:  NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	// -------- LOGIN THROTTLE --------
	if b.redis != nil && cfg.Security.EnableLoginThrottle {
		limiter, err := rate.New(b.redis, rate.Config{
			Prefix:           cfg.Session.RedisPrefix,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
			LoginCooldown:    cfg.Security.LoginCooldown,
		})
		if err != nil {
			return nil, err
		}
		engine.limiter = limiter
	}

	engine.flows = engine.buildFlows()
	b.built = true

	return engine, nil
}
