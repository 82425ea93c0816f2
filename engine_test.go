package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedash/authcore/account"
	"github.com/pipelinedash/authcore/password"
	"github.com/pipelinedash/authcore/permission"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-for-tests-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-for-tests-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type engineOption func(*Builder, *Config)

func withMaxSessions(n int) engineOption {
	return func(_ *Builder, cfg *Config) { cfg.Session.MaxSessionsPerUser = n }
}

func newTestEngine(t *testing.T, opts ...engineOption) (*Engine, *testClock) {
	t.Helper()

	clock := newTestClock()
	cfg := testConfig()
	b := New().WithClock(clock.Now)
	for _, opt := range opts {
		opt(b, &cfg)
	}

	engine, err := b.WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, clock
}

func mustCreateUser(t *testing.T, e *Engine, username, role string) *User {
	t.Helper()

	u, err := e.CreateUser(context.Background(), NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: username + "-password",
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

func mustLogin(t *testing.T, e *Engine, username, ip string) *LoginResult {
	t.Helper()

	res, err := e.Login(context.Background(), LoginRequest{
		Username:  username,
		Password:  username + "-password",
		IP:        ip,
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return res
}

func TestBuildRequiresSecrets(t *testing.T) {
	_, err := New().Build()
	require.Error(t, err)

	b := New().WithConfig(testConfig())
	_, err = b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	require.Error(t, err)
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	_, err := e.Login(context.Background(), LoginRequest{Username: "a", Password: "b"})
	require.ErrorIs(t, err, ErrEngineNotReady)
	_, err = e.Authenticate(context.Background(), "token")
	require.ErrorIs(t, err, ErrEngineNotReady)
}

func TestLoginThenAuthenticateReturnsSameUser(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		created := mustCreateUser(t, e, name, permission.RoleEditor)

		login := mustLogin(t, e, name, "10.0.0.1")
		assert.Equal(t, created.ID, login.User.ID)
		assert.NotEmpty(t, login.AccessToken)
		assert.NotEmpty(t, login.RefreshToken)
		assert.NotNil(t, login.User.LastLogin)

		res, err := e.Authenticate(ctx, login.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, created.ID, res.User.ID)
		assert.Equal(t, name, res.User.Username)
		assert.Equal(t, login.SessionID, res.SessionID)
		assert.Contains(t, res.Permissions, "deals:write")
		assert.Nil(t, res.Refreshed)
	}

	snap := e.MetricsSnapshot()
	assert.Equal(t, uint64(3), snap.Counters[MetricLoginSuccess])
	assert.Equal(t, uint64(3), snap.Counters[MetricAuthenticateSuccess])
}

func TestLoginAcceptsEmail(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	created := mustCreateUser(t, e, "alice", permission.RoleViewer)

	res, err := e.Login(ctx, LoginRequest{Username: "Alice@Example.com", Password: "alice-password"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, res.User.ID)
	assert.Equal(t, "alice", res.User.Username)

	_, err = e.Login(ctx, LoginRequest{Username: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)

	_, err := e.Login(ctx, LoginRequest{Username: "alice", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = e.Login(ctx, LoginRequest{Username: "nobody", Password: "whatever-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = e.Login(ctx, LoginRequest{Username: "alice", Password: ""})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, uint64(3), e.MetricsSnapshot().Counters[MetricLoginFailure])
}

func TestLoginUsernameIsCaseInsensitive(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateUser(t, e, "alice", permission.RoleViewer)

	_, err := e.Login(context.Background(), LoginRequest{Username: "  Alice ", Password: "alice-password"})
	require.NoError(t, err)
}

func TestLoginInactiveAccount(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)

	suspended := StatusSuspended
	_, err := e.UpdateUser(ctx, u.ID, UserPatch{Status: &suspended})
	require.NoError(t, err)

	_, err = e.Login(ctx, LoginRequest{Username: "alice", Password: "alice-password"})
	require.ErrorIs(t, err, ErrAccountInactive)
	assert.Equal(t, CodeAccountInactive, CodeOf(err))
}

func TestLoginUsesContextMetadata(t *testing.T) {
	e, _ := newTestEngine(t)
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)

	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.7"), "curl/8")
	login, err := e.Login(ctx, LoginRequest{Username: "alice", Password: "alice-password"})
	require.NoError(t, err)

	sessions, err := e.GetUserSessions(ctx, u.ID, login.SessionID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "192.0.2.7", sessions[0].IP)
	assert.Equal(t, "curl/8", sessions[0].UserAgent)
	assert.True(t, sessions[0].Current)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	_, err := e.Authenticate(ctx, "")
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = e.Authenticate(ctx, "not-a-jwt")
	require.ErrorIs(t, err, ErrTokenMalformed)

	// A refresh token is signed with the other secret.
	_, err = e.Authenticate(ctx, login.RefreshToken)
	require.ErrorIs(t, err, ErrTokenMalformed)

	clock.Advance(time.Hour + time.Minute)
	_, err = e.Authenticate(ctx, login.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSessionCapEvictsLeastRecentlyActive(t *testing.T) {
	e, clock := newTestEngine(t, withMaxSessions(3))
	ctx := context.Background()
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)

	first := mustLogin(t, e, "alice", "10.0.0.1")
	clock.Advance(time.Minute)
	second := mustLogin(t, e, "alice", "10.0.0.2")
	clock.Advance(time.Minute)
	third := mustLogin(t, e, "alice", "10.0.0.3")
	clock.Advance(time.Minute)

	// Touching the first session makes the second the least recently active.
	_, err := e.Authenticate(ctx, first.AccessToken)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	fourth := mustLogin(t, e, "alice", "10.0.0.4")
	assert.Equal(t, []string{second.SessionID}, fourth.EvictedSessions)

	sessions, err := e.GetUserSessions(ctx, u.ID, "")
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	ids := []string{sessions[0].ID, sessions[1].ID, sessions[2].ID}
	assert.ElementsMatch(t, []string{first.SessionID, third.SessionID, fourth.SessionID}, ids)

	_, err = e.Authenticate(ctx, second.AccessToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		mustLogin(t, e, "alice", "10.0.0.9")
	}
	sessions, err = e.GetUserSessions(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
	assert.Equal(t, uint64(5), e.MetricsSnapshot().Counters[MetricSessionEvicted])
}

func TestSingleSessionCapScenario(t *testing.T) {
	e, clock := newTestEngine(t, withMaxSessions(1))
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)

	first := mustLogin(t, e, "alice", "198.51.100.1")
	clock.Advance(time.Second)
	second := mustLogin(t, e, "alice", "203.0.113.9")
	assert.Equal(t, []string{first.SessionID}, second.EvictedSessions)

	_, err := e.Authenticate(ctx, first.AccessToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	res, err := e.Authenticate(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
}

func TestRefreshRotation(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	clock.Advance(time.Minute)
	pair, err := e.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, login.SessionID, pair.SessionID)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	res, err := e.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.SessionID, res.SessionID)

	clock.Advance(time.Minute)
	next, err := e.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = e.Refresh(ctx, login.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	// The replayed token took the session down with it.
	_, err = e.Refresh(ctx, next.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)
	_, err = e.Authenticate(ctx, next.AccessToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	snap := e.MetricsSnapshot()
	assert.Equal(t, uint64(2), snap.Counters[MetricRefreshSuccess])
	assert.Equal(t, uint64(1), snap.Counters[MetricRefreshReuseDetected])
}

func TestRefreshRejectsGarbageWithoutTouchingSessions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	_, err := e.Refresh(ctx, "")
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)
	_, err = e.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)
	_, err = e.Refresh(ctx, login.AccessToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	_, err = e.Authenticate(ctx, login.AccessToken)
	require.NoError(t, err)
}

func TestExpiredRefreshInvalidatesSession(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	clock.Advance(7*24*time.Hour + time.Minute)
	_, err := e.Refresh(ctx, login.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	sessions, err := e.GetUserSessions(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestAuthenticateOrRefresh(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	clock.Advance(time.Hour + time.Minute)

	_, err := e.AuthenticateOrRefresh(ctx, login.AccessToken, "")
	require.ErrorIs(t, err, ErrTokenExpired)

	res, err := e.AuthenticateOrRefresh(ctx, login.AccessToken, login.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, res.Refreshed)
	assert.Equal(t, login.SessionID, res.SessionID)
	assert.Equal(t, login.SessionID, res.Refreshed.SessionID)

	_, err = e.Authenticate(ctx, res.Refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.MetricsSnapshot().Counters[MetricAutoRefresh])
}

func TestAuthenticateOrRefreshRequiresMatchingSession(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)
	first := mustLogin(t, e, "alice", "10.0.0.1")
	second := mustLogin(t, e, "alice", "10.0.0.2")

	clock.Advance(time.Hour + time.Minute)

	_, err := e.AuthenticateOrRefresh(ctx, first.AccessToken, second.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	// The mismatched refresh token is still good for its own session.
	_, err = e.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestLogout(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")
	other := mustLogin(t, e, "alice", "10.0.0.2")

	require.NoError(t, e.Logout(ctx, login.SessionID))
	require.NoError(t, e.Logout(ctx, login.SessionID))

	_, err := e.Authenticate(ctx, login.AccessToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = e.Refresh(ctx, login.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	require.NoError(t, e.LogoutByAccessToken(ctx, other.AccessToken))
	_, err = e.Authenticate(ctx, other.AccessToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.ErrorIs(t, e.LogoutByAccessToken(ctx, "garbage"), ErrTokenMalformed)
}

func TestAuthorize(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateUser(t, e, "vera", permission.RoleViewer)
	login := mustLogin(t, e, "vera", "10.0.0.1")

	res, err := e.Authenticate(ctx, login.AccessToken)
	require.NoError(t, err)

	require.NoError(t, e.Authorize(ctx, res, permission.RoleViewer))
	require.ErrorIs(t, e.Authorize(ctx, res, permission.RoleEditor), ErrForbidden)
	require.ErrorIs(t, e.Authorize(ctx, res, "no-such-role"), ErrForbidden)
	require.NoError(t, e.AuthorizePermission(ctx, res, "deals:read"))
	require.ErrorIs(t, e.AuthorizePermission(ctx, res, "deals:write"), ErrForbidden)
	require.ErrorIs(t, e.Authorize(ctx, nil, permission.RoleViewer), ErrForbidden)

	assert.Equal(t, uint64(3), e.MetricsSnapshot().Counters[MetricAuthorizationDenied])
}

func TestRoleChangeAppliesBeforeTokenExpiry(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	u := mustCreateUser(t, e, "vera", permission.RoleViewer)
	login := mustLogin(t, e, "vera", "10.0.0.1")

	role := permission.RoleEditor
	_, err := e.UpdateUser(ctx, u.ID, UserPatch{Role: &role})
	require.NoError(t, err)

	res, err := e.Authenticate(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, permission.RoleEditor, res.User.Role)
	require.NoError(t, e.Authorize(ctx, res, permission.RoleEditor))
}

func TestPermissionInheritance(t *testing.T) {
	e, _ := newTestEngine(t)

	admin, err := e.PermissionsFor(permission.RoleAdmin)
	require.NoError(t, err)
	editor, err := e.PermissionsFor(permission.RoleEditor)
	require.NoError(t, err)
	viewer, err := e.PermissionsFor(permission.RoleViewer)
	require.NoError(t, err)

	assert.Subset(t, admin, editor)
	assert.Subset(t, editor, viewer)
	assert.Greater(t, len(admin), len(editor))
	assert.Greater(t, len(editor), len(viewer))

	_, err = e.PermissionsFor("ghost")
	require.ErrorIs(t, err, ErrInvalidRole)

	assert.True(t, e.CanManage(permission.RoleAdmin, permission.RoleEditor))
	assert.False(t, e.CanManage(permission.RoleEditor, permission.RoleEditor))
	assert.True(t, e.HasPermission(permission.RoleAdmin, "deals:read"))
}

func TestLegacyPasswordUpgradedOnLogin(t *testing.T) {
	repo := account.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, &account.User{
		ID:           "legacy-1",
		Username:     "oscar",
		PasswordHash: password.LegacySHA512("oscar-password", "pepper"),
		Salt:         "pepper",
		Role:         permission.RoleViewer,
		Status:       account.StatusActive,
	}))

	e, _ := newTestEngine(t, func(b *Builder, _ *Config) { b.WithUserRepository(repo) })

	mustLogin(t, e, "oscar", "10.0.0.1")

	stored, err := repo.FindByID(ctx, "legacy-1")
	require.NoError(t, err)
	assert.Contains(t, stored.PasswordHash, "$argon2id$")
	assert.Equal(t, uint64(1), e.MetricsSnapshot().Counters[MetricPasswordUpgraded])

	mustLogin(t, e, "oscar", "10.0.0.1")
	assert.Equal(t, uint64(1), e.MetricsSnapshot().Counters[MetricPasswordUpgraded])
}

func TestLoginThrottleWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e, _ := newTestEngine(t, func(b *Builder, cfg *Config) {
		b.WithRedis(client)
		cfg.Security.MaxLoginAttempts = 3
	})
	ctx := context.Background()
	mustCreateUser(t, e, "alice", permission.RoleViewer)

	for i := 0; i < 3; i++ {
		_, err := e.Login(ctx, LoginRequest{Username: "alice", Password: "wrong-password"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := e.Login(ctx, LoginRequest{Username: "alice", Password: "alice-password"})
	require.ErrorIs(t, err, ErrLoginRateLimited)
	assert.Equal(t, 429, StatusOf(err))

	mr.FastForward(16 * time.Minute)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	// Sessions live in Redis as well.
	res, err := e.Authenticate(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.SessionID, res.SessionID)
}

func TestLoginFailsClosedWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	e, _ := newTestEngine(t, func(b *Builder, _ *Config) { b.WithRedis(client) })
	mustCreateUser(t, e, "alice", permission.RoleViewer)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	mr.Close()

	_, err := e.Login(context.Background(), LoginRequest{Username: "alice", Password: "alice-password"})
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = e.Authenticate(context.Background(), login.AccessToken)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, CodeUnavailable, CodeOf(err))
}

func TestAuditEventsEmitted(t *testing.T) {
	sink := NewChannelSink(16)
	e, _ := newTestEngine(t, func(b *Builder, cfg *Config) {
		b.WithAuditSink(sink)
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
	})
	ctx := context.Background()
	u := mustCreateUser(t, e, "alice", permission.RoleViewer)

	_, err := e.Login(ctx, LoginRequest{Username: "alice", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	login := mustLogin(t, e, "alice", "10.0.0.1")

	want := []struct {
		eventType string
		success   bool
	}{
		{auditEventUserCreated, true},
		{auditEventLoginFailure, false},
		{auditEventLoginSuccess, true},
	}
	for _, w := range want {
		select {
		case ev := <-sink.Events():
			assert.Equal(t, w.eventType, ev.EventType)
			assert.Equal(t, w.success, ev.Success)
			assert.NotEmpty(t, ev.ID)
			if w.eventType == auditEventLoginSuccess {
				assert.Equal(t, u.ID, ev.UserID)
				assert.Equal(t, login.SessionID, ev.SessionID)
				assert.Equal(t, "10.0.0.1", ev.IP)
			}
			if w.eventType == auditEventLoginFailure {
				assert.Equal(t, string(CodeInvalidCredentials), ev.Error)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w.eventType)
		}
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	backends := map[string]func(t *testing.T) engineOption{
		"memory": func(*testing.T) engineOption { return func(*Builder, *Config) {} },
		"redis": func(t *testing.T) engineOption {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return func(b *Builder, _ *Config) { b.WithRedis(client) }
		},
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			e, _ := newTestEngine(t, backend(t))
			ctx := context.Background()
			mustCreateUser(t, e, "alice", permission.RoleViewer)
			login := mustLogin(t, e, "alice", "10.0.0.1")

			const workers = 16
			start := make(chan struct{})
			results := make(chan error, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := e.Refresh(ctx, login.RefreshToken)
					results <- err
				}()
			}
			close(start)
			wg.Wait()
			close(results)

			wins := 0
			for err := range results {
				if err == nil {
					wins++
					continue
				}
				require.ErrorIs(t, err, ErrRefreshTokenInvalid)
			}
			assert.Equal(t, 1, wins)

			// The losers replayed a rotated token, so the session is gone.
			_, err := e.Authenticate(ctx, login.AccessToken)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}
