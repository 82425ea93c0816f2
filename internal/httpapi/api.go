// Package httpapi exposes the engine's consumer operations over HTTP with a
// chi router. It is the surface served by `authcore serve`.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/pipelinedash/authcore"
	"github.com/pipelinedash/authcore/middleware"
	"github.com/pipelinedash/authcore/permission"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultLoginRate      = 20
)

// Options controls the router.
type Options struct {
	AllowedOrigins []string
	// LoginRatePerMinute caps POST /auth/login per client IP. Zero uses the
	// default, a negative value disables the limit.
	LoginRatePerMinute int
	RequestTimeout     time.Duration
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

// API serves the auth routes on top of an engine.
type API struct {
	engine *authcore.Engine
	opts   Options
	logger zerolog.Logger
}

// New validates the options and returns an API.
func New(engine *authcore.Engine, opts Options) (*API, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.LoginRatePerMinute == 0 {
		opts.LoginRatePerMinute = defaultLoginRate
	}

	return &API{
		engine: engine,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "httpapi").Logger(),
	}, nil
}

// Routes builds the chi router containing every endpoint.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(a.accessLog)
	r.Use(chimw.Timeout(a.opts.RequestTimeout))

	allowed := a.opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:5173"}
	}
	security := a.engine.SecurityConfig()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", security.RefreshHeaderName},
		ExposedHeaders:   []string{security.AccessHeaderName},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if a.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.opts.Metrics)
	}

	authenticated := middleware.Authenticate(a.engine)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if a.opts.LoginRatePerMinute > 0 {
				r.Use(httprate.LimitByIP(a.opts.LoginRatePerMinute, time.Minute))
			}
			r.Post("/login", a.handleLogin)
		})
		r.Post("/refresh", a.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/logout", a.handleLogout)
			r.Get("/me", a.handleMe)
			r.Post("/password", a.handleChangePassword)
			r.Get("/sessions", a.handleListSessions)
			r.Post("/sessions/invalidate-others", a.handleInvalidateOthers)
			r.Delete("/sessions/{sessionID}", a.handleRevokeSession)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authenticated)
		r.With(middleware.RequirePermission(a.engine, permission.PermUsersRead)).Get("/", a.handleListUsers)
		r.Post("/", a.handleCreateUser)
		r.Get("/{userID}", a.handleGetUser)
		r.Patch("/{userID}", a.handleUpdateUser)
		r.Delete("/{userID}", a.handleDeleteUser)
	})

	return r
}
