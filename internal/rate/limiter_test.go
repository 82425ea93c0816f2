package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, ipThrottle bool) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := New(client, Config{
		Prefix:           "test",
		EnableIPThrottle: ipThrottle,
		MaxLoginAttempts: 3,
		LoginCooldown:    time.Minute,
	})
	require.NoError(t, err)
	return l, mr
}

func TestLoginBudget(t *testing.T) {
	l, _ := newTestLimiter(t, false)
	ctx := context.Background()

	require.NoError(t, l.CheckLogin(ctx, "alice", "10.0.0.1"))
	require.NoError(t, l.IncrementLogin(ctx, "alice", "10.0.0.1"))
	require.NoError(t, l.IncrementLogin(ctx, "Alice", "10.0.0.1"))
	require.NoError(t, l.IncrementLogin(ctx, "alice ", "10.0.0.1"))

	assert.ErrorIs(t, l.CheckLogin(ctx, "alice", "10.0.0.1"), ErrRateLimited)
	assert.ErrorIs(t, l.IncrementLogin(ctx, "alice", "10.0.0.1"), ErrRateLimited)

	n, err := l.Attempts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Other usernames are unaffected without IP throttling.
	assert.NoError(t, l.CheckLogin(ctx, "bob", "10.0.0.1"))
}

func TestLoginWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = l.IncrementLogin(ctx, "carol", "")
	}
	require.ErrorIs(t, l.CheckLogin(ctx, "carol", ""), ErrRateLimited)

	mr.FastForward(2 * time.Minute)
	assert.NoError(t, l.CheckLogin(ctx, "carol", ""))
}

func TestLoginIPThrottle(t *testing.T) {
	l, _ := newTestLimiter(t, true)
	ctx := context.Background()

	require.NoError(t, l.IncrementLogin(ctx, "u1", "10.0.0.9"))
	require.NoError(t, l.IncrementLogin(ctx, "u2", "10.0.0.9"))
	require.NoError(t, l.IncrementLogin(ctx, "u3", "10.0.0.9"))

	assert.ErrorIs(t, l.CheckLogin(ctx, "u4", "10.0.0.9"), ErrRateLimited)
	assert.NoError(t, l.CheckLogin(ctx, "u4", "10.0.0.10"))
}

func TestResetLogin(t *testing.T) {
	l, _ := newTestLimiter(t, false)
	ctx := context.Background()

	require.NoError(t, l.IncrementLogin(ctx, "dave", ""))
	require.NoError(t, l.ResetLogin(ctx, "dave", ""))

	n, err := l.Attempts(ctx, "dave")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisUnavailable(t *testing.T) {
	l, mr := newTestLimiter(t, false)
	mr.Close()

	err := l.CheckLogin(context.Background(), "erin", "")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
