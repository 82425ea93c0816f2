package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pipelinedash/authcore"
	"github.com/pipelinedash/authcore/account"
	"github.com/pipelinedash/authcore/internal/audit"
	"github.com/pipelinedash/authcore/internal/config"
	"github.com/pipelinedash/authcore/internal/httpapi"
	"github.com/pipelinedash/authcore/internal/logging"
	otelexport "github.com/pipelinedash/authcore/metrics/export/otel"
	promexport "github.com/pipelinedash/authcore/metrics/export/prometheus"
	"github.com/pipelinedash/authcore/permission"
)

func newServeCommand() *cobra.Command {
	var (
		envFile string
		migrate bool
		seed    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(ctx, files...)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

			return serve(ctx, cfg, logger, migrate, seed || cfg.SeedDefaultUsers)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Optional .env file (defaults to ./.env)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply database migrations before serving")
	cmd.Flags().BoolVar(&seed, "seed", false, "Create the default admin/editor/viewer users when missing")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger, migrate, seed bool) error {
	b := authcore.New().
		WithConfig(cfg.ToEngineConfig()).
		WithLogger(logger).
		WithSessionCache(cfg.SessionCache)

	// -------- REDIS --------
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		b.WithRedis(client)
	} else {
		logger.Warn().Msg("REDIS_URL not set; sessions are kept in process memory")
	}

	// -------- POSTGRES --------
	if cfg.DatabaseURL != "" {
		db, err := account.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if migrate {
			if err := account.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}
		b.WithUserRepository(account.NewPostgresRepository(db))
	} else {
		logger.Warn().Msg("DATABASE_URL not set; users are kept in process memory")
	}

	// -------- RBAC --------
	if cfg.RBACPolicyFile != "" {
		policy, err := permission.LoadPolicyFile(cfg.RBACPolicyFile)
		if err != nil {
			return fmt.Errorf("load rbac policy: %w", err)
		}
		b.WithRolePolicy(policy)
	}

	// -------- AUDIT --------
	var sinks []authcore.AuditSink
	if cfg.AuditLog {
		sinks = append(sinks, authcore.NewZerologSink(logger))
	}
	if cfg.NATSURL != "" {
		nc, err := audit.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()
		sink, err := authcore.NewNATSSink(nc, cfg.AuditSubject)
		if err != nil {
			return err
		}
		sink.OnError = func(err error) {
			logger.Warn().Err(err).Msg("audit publish failed")
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) > 0 {
		b.WithAuditSink(authcore.MultiSink(sinks...))
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if cfg.SessionCache {
		n, err := engine.ReloadSessionCache(ctx)
		if err != nil {
			return fmt.Errorf("load session cache: %w", err)
		}
		logger.Info().Int("sessions", n).Msg("session cache loaded")
	}

	if seed {
		res, err := engine.SeedUsers(ctx, authcore.DefaultSeedUsers())
		if err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
		logger.Info().Strs("created", res.Created).Strs("skipped", res.Skipped).Msg("seeded users")
	}

	// -------- OTEL --------
	stopMetrics, err := otelexport.Start(ctx, otelexport.PushConfig{
		ServiceName: "authcore",
		EndpointURL: cfg.OTelMetricsEndpoint,
		Interval:    cfg.OTelMetricsInterval,
	}, engine)
	if err != nil {
		return fmt.Errorf("start otel metrics: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopMetrics(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("flush otel metrics")
		}
	}()
	if cfg.OTelMetricsEndpoint != "" {
		logger.Info().Str("endpoint", cfg.OTelMetricsEndpoint).Msg("pushing otel metrics")
	}

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeperDone := engine.StartSweeper(sweeperCtx, cfg.SessionSweepInterval)

	api, err := httpapi.New(engine, httpapi.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Metrics:            promexport.NewCollector(engine).Handler(),
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("starting authcore")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}

	stopSweeper()
	<-sweeperDone
	logger.Info().Uint64("audit_dropped", engine.AuditDropped()).Msg("authcore stopped")
	return nil
}
