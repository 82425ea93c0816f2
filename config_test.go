package authcore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing access secret", func(c *Config) { c.JWT.AccessSecret = nil }, "AccessSecret is required"},
		{"short refresh secret", func(c *Config) { c.JWT.RefreshSecret = []byte("short") }, "RefreshSecret must be at least"},
		{"same secrets", func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret }, "must differ"},
		{"access outlives refresh", func(c *Config) { c.JWT.AccessTTL = 8 * 24 * time.Hour }, "shorter than RefreshTTL"},
		{"zero session cap", func(c *Config) { c.Session.MaxSessionsPerUser = 0 }, "MaxSessionsPerUser"},
		{"weak argon2", func(c *Config) { c.Password.Memory = 1024 }, "memory"},
		{"zero min length", func(c *Config) { c.Password.MinLength = 0 }, "MinLength"},
		{"throttle without attempts", func(c *Config) { c.Security.MaxLoginAttempts = 0 }, "MaxLoginAttempts"},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, "BufferSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWithConfigCopiesSecrets(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.JWT.AccessSecret[0] = 'X'

	e, err := b.Build()
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, byte('a'), e.Config().JWT.AccessSecret[0])
}

func TestSecurityConfigIsAllocationFree(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RefreshCookieName = "rt"
	e, err := New().WithConfig(cfg).Build()
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, e.Config().Security, e.SecurityConfig())
	assert.Equal(t, "rt", e.SecurityConfig().RefreshCookieName)

	allocs := testing.AllocsPerRun(100, func() {
		_ = e.SecurityConfig().CookieSecure
	})
	assert.Zero(t, allocs)
}

func TestErrorMapping(t *testing.T) {
	assert.Equal(t, CodeTokenExpired, CodeOf(ErrTokenExpired))
	assert.Equal(t, 401, StatusOf(ErrTokenExpired))
	assert.Equal(t, 403, StatusOf(ErrForbidden))
	assert.Equal(t, 409, StatusOf(ErrDuplicateEmail))

	wrapped := fmt.Errorf("%w: redis: connection refused", ErrUnavailable)
	assert.Equal(t, CodeUnavailable, CodeOf(wrapped))
	assert.Equal(t, "auth backend unavailable", MessageOf(wrapped))

	secret := fmt.Errorf("pq: password authentication failed for user %q", "svc")
	assert.Equal(t, CodeInternal, CodeOf(secret))
	assert.Equal(t, 500, StatusOf(secret))
	assert.Equal(t, "internal error", MessageOf(secret))
	assert.Empty(t, CodeOf(nil))
}
