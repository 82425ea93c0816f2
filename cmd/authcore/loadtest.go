package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pipelinedash/authcore"
	"github.com/pipelinedash/authcore/permission"
)

type loadtestOptions struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
}

type sessionState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func newLoadtestCommand() *cobra.Command {
	var opts loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure login, authenticate and refresh throughput",
		Long:  "Runs the engine against Redis (an in-process miniredis unless --redis-addr is set) and prints latency percentiles per phase.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return errors.New("users, concurrency, and ops must be > 0")
			}
			return runLoadtest(commandContext(cmd), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.users, "users", 200, "Number of users to create and log in")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "Number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 20000, "Operations per authenticate and refresh phase")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "Redis address; empty starts miniredis")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) error {
	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("loadtest-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret-0123456789abcdef")
	cfg.Session.RedisPrefix = "authcore-loadtest"
	// Cheap hashing keeps the login phase about sessions, not the KDF.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.EnableLoginThrottle = false

	engine, err := authcore.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(out, "creating %d users...\n", opts.users)
	for i := 0; i < opts.users; i++ {
		if _, err := engine.CreateUser(ctx, authcore.NewUser{
			Username: loadtestUsername(i),
			Password: "loadtest-password",
			Role:     permission.RoleViewer,
		}); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
	}

	states := make([]sessionState, opts.users)
	loginStats := runPhase(opts.users, opts.concurrency, func(i int, _ *rand.Rand) error {
		res, err := engine.Login(ctx, authcore.LoginRequest{
			Username:  loadtestUsername(i),
			Password:  "loadtest-password",
			IP:        "127.0.0.1",
			UserAgent: "authcore-loadtest",
		})
		if err != nil {
			return err
		}
		states[i].access = res.AccessToken
		states[i].refresh = res.RefreshToken
		return nil
	})

	authStats := runPhase(opts.ops, opts.concurrency, func(_ int, r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		token := state.access
		state.mu.Unlock()
		_, err := engine.Authenticate(ctx, token)
		return err
	})

	refreshStats := runPhase(opts.ops, opts.concurrency, func(_ int, r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		pair, err := engine.Refresh(ctx, state.refresh)
		if err != nil {
			return err
		}
		state.access = pair.AccessToken
		state.refresh = pair.RefreshToken
		return nil
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", loginStats)
	printStats(out, "authenticate", authStats)
	printStats(out, "refresh", refreshStats)
	return nil
}

func loadtestUsername(i int) string {
	return fmt.Sprintf("loadtest-%05d", i)
}

// runPhase runs op ops times over concurrency workers. Each call receives
// its sequence number and a per-worker random source.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
