package flows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errExpired     = errors.New("expired")
	errMalformed   = errors.New("malformed")
	errNoSession   = errors.New("no session")
	errNoAccount   = errors.New("no account")
	errMismatch    = errors.New("mismatch")
	errBadPassword = errors.New("bad password")
	errRateLimited = errors.New("rate limited")
	errBackendDown = errors.New("backend down")
)

type fakeLimiter struct {
	checkErr error
	incErr   error
	checks   int
	incs     int
	resets   int
}

func (f *fakeLimiter) CheckLogin(context.Context, string, string) error {
	f.checks++
	return f.checkErr
}

func (f *fakeLimiter) IncrementLogin(context.Context, string, string) error {
	f.incs++
	return f.incErr
}

func (f *fakeLimiter) ResetLogin(context.Context, string, string) error {
	f.resets++
	return nil
}

func loginDeps(limiter LoginRateLimiter, acct Account) (LoginDeps, *[]string) {
	created := []string{}
	return LoginDeps{
		RateLimiter: limiter,
		RateLimited: errRateLimited,
		Authenticate: func(_ context.Context, username, password string) (Account, error) {
			if username == acct.Username && password == "secret" {
				return acct, nil
			}
			return Account{}, errBadPassword
		},
		InvalidCredentials: errBadPassword,
		NewSessionID:       func() (string, error) { return "sid-1", nil },
		IssueAccess:        func(a Account, sid string) (string, error) { return "access:" + a.ID + ":" + sid, nil },
		IssueRefresh:       func(uid, sid string) (string, error) { return "refresh:" + uid + ":" + sid, nil },
		CreateSession: func(_ context.Context, sid string, _ Account, _ LoginRequest, _ string) ([]string, error) {
			created = append(created, sid)
			return []string{"old-sid"}, nil
		},
	}, &created
}

func TestRunLoginSuccess(t *testing.T) {
	limiter := &fakeLimiter{}
	deps, created := loginDeps(limiter, Account{ID: "u1", Username: "alice", Active: true})

	res := RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "secret"}, deps)
	require.Equal(t, LoginFailureNone, res.Failure)
	assert.Equal(t, "sid-1", res.SessionID)
	assert.Equal(t, "access:u1:sid-1", res.AccessToken)
	assert.Equal(t, "refresh:u1:sid-1", res.RefreshToken)
	assert.Equal(t, []string{"old-sid"}, res.Evicted)
	assert.Equal(t, []string{"sid-1"}, *created)
	assert.Equal(t, 1, limiter.resets)
	assert.Zero(t, limiter.incs)
}

func TestRunLoginFailures(t *testing.T) {
	t.Run("bad password counts", func(t *testing.T) {
		limiter := &fakeLimiter{}
		deps, created := loginDeps(limiter, Account{ID: "u1", Username: "alice", Active: true})
		res := RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "nope"}, deps)
		assert.Equal(t, LoginFailureCredentials, res.Failure)
		assert.Equal(t, 1, limiter.incs)
		assert.Empty(t, *created)
	})

	t.Run("empty password skips lookup", func(t *testing.T) {
		limiter := &fakeLimiter{}
		deps, _ := loginDeps(limiter, Account{ID: "u1", Username: "alice", Active: true})
		deps.Authenticate = func(context.Context, string, string) (Account, error) {
			t.Fatal("authenticate must not run")
			return Account{}, nil
		}
		res := RunLogin(context.Background(), LoginRequest{Username: "alice"}, deps)
		assert.Equal(t, LoginFailureCredentials, res.Failure)
		assert.Equal(t, 1, limiter.incs)
	})

	t.Run("throttled", func(t *testing.T) {
		limiter := &fakeLimiter{checkErr: errRateLimited}
		deps, _ := loginDeps(limiter, Account{ID: "u1", Username: "alice", Active: true})
		res := RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "secret"}, deps)
		assert.Equal(t, LoginFailureRateLimited, res.Failure)
	})

	t.Run("limiter backend", func(t *testing.T) {
		limiter := &fakeLimiter{checkErr: errBackendDown}
		deps, _ := loginDeps(limiter, Account{ID: "u1", Username: "alice", Active: true})
		res := RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "secret"}, deps)
		assert.Equal(t, LoginFailureLimiterBackend, res.Failure)
		assert.ErrorIs(t, res.Err, errBackendDown)
	})

	t.Run("inactive", func(t *testing.T) {
		limiter := &fakeLimiter{}
		deps, created := loginDeps(limiter, Account{ID: "u1", Username: "alice", Active: false})
		res := RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "secret"}, deps)
		assert.Equal(t, LoginFailureInactive, res.Failure)
		assert.Equal(t, "u1", res.Account.ID)
		assert.Zero(t, limiter.incs)
		assert.Empty(t, *created)
	})

	t.Run("session store", func(t *testing.T) {
		deps, _ := loginDeps(nil, Account{ID: "u1", Username: "alice", Active: true})
		deps.CreateSession = func(context.Context, string, Account, LoginRequest, string) ([]string, error) {
			return nil, errBackendDown
		}
		res := RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "secret"}, deps)
		assert.Equal(t, LoginFailureSession, res.Failure)
	})
}

type refreshFixture struct {
	claims   RefreshClaims
	verify   error
	owner    string
	ownerErr error
	acct     Account
	acctErr  error
	rotate   error
	deleted  []string
	rotated  []string
}

func (f *refreshFixture) deps() RefreshDeps {
	return RefreshDeps{
		VerifyRefresh: func(string) (RefreshClaims, error) { return f.claims, f.verify },
		Expired:       errExpired,
		SessionOwner: func(context.Context, string) (string, error) {
			return f.owner, f.ownerErr
		},
		SessionNotFound: errNoSession,
		LoadAccount: func(context.Context, string) (Account, error) {
			return f.acct, f.acctErr
		},
		AccountNotFound: errNoAccount,
		IssueAccess:     func(a Account, sid string) (string, error) { return "access2", nil },
		IssueRefresh:    func(uid, sid string) (string, error) { return "refresh2", nil },
		Rotate: func(_ context.Context, sid, presented, next string) error {
			f.rotated = append(f.rotated, presented+">"+next)
			return f.rotate
		},
		RefreshMismatch: errMismatch,
		DeleteSession: func(_ context.Context, sid string) error {
			f.deleted = append(f.deleted, sid)
			return nil
		},
	}
}

func newRefreshFixture() *refreshFixture {
	return &refreshFixture{
		claims: RefreshClaims{UserID: "u1", SessionID: "s1"},
		owner:  "u1",
		acct:   Account{ID: "u1", Active: true},
	}
}

func TestRunRefreshSuccess(t *testing.T) {
	f := newRefreshFixture()
	res := RunRefresh(context.Background(), "refresh1", "", f.deps())

	require.Equal(t, RefreshFailureNone, res.Failure)
	assert.Equal(t, "access2", res.AccessToken)
	assert.Equal(t, "refresh2", res.RefreshToken)
	assert.Equal(t, []string{"refresh1>refresh2"}, f.rotated)
	assert.Empty(t, f.deleted)
}

func TestRunRefreshFailures(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*refreshFixture)
		bound       string
		want        RefreshFailureKind
		wantDeleted bool
	}{
		{"unauthentic token", func(f *refreshFixture) {
			f.claims = RefreshClaims{}
			f.verify = errMalformed
		}, "", RefreshFailureDecode, false},
		{"expired token", func(f *refreshFixture) { f.verify = errExpired }, "", RefreshFailureExpired, true},
		{"bound to other session", func(*refreshFixture) {}, "s2", RefreshFailureBinding, false},
		{"session gone", func(f *refreshFixture) { f.ownerErr = errNoSession }, "", RefreshFailureSessionNotFound, false},
		{"session lookup error", func(f *refreshFixture) { f.ownerErr = errBackendDown }, "", RefreshFailureBackend, false},
		{"owner mismatch", func(f *refreshFixture) { f.owner = "u2" }, "", RefreshFailureDecode, true},
		{"account gone", func(f *refreshFixture) { f.acctErr = errNoAccount }, "", RefreshFailureAccountNotFound, true},
		{"account inactive", func(f *refreshFixture) { f.acct.Active = false }, "", RefreshFailureInactive, true},
		{"reuse", func(f *refreshFixture) { f.rotate = errMismatch }, "", RefreshFailureReuse, false},
		{"rotate backend", func(f *refreshFixture) { f.rotate = errBackendDown }, "", RefreshFailureBackend, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRefreshFixture()
			tt.setup(f)
			res := RunRefresh(context.Background(), "refresh1", tt.bound, f.deps())
			assert.Equal(t, tt.want, res.Failure)
			assert.Empty(t, res.AccessToken)
			if tt.wantDeleted {
				assert.Equal(t, []string{"s1"}, f.deleted)
			} else {
				assert.Empty(t, f.deleted)
			}
		})
	}
}

func validateDeps(owner string, acct Account, acctErr error, touched *int, deleted *[]string) ValidateDeps {
	return ValidateDeps{
		VerifyAccess: func(token string) (AccessClaims, error) {
			switch token {
			case "expired":
				return AccessClaims{}, errExpired
			case "good":
				return AccessClaims{UserID: "u1", SessionID: "s1"}, nil
			default:
				return AccessClaims{}, errMalformed
			}
		},
		Expired: errExpired,
		SessionOwner: func(context.Context, string) (string, error) {
			if owner == "" {
				return "", errNoSession
			}
			return owner, nil
		},
		SessionNotFound: errNoSession,
		LoadAccount: func(context.Context, string) (Account, error) {
			return acct, acctErr
		},
		AccountNotFound: errNoAccount,
		Touch: func(context.Context, string) error {
			*touched++
			return nil
		},
		DeleteSession: func(_ context.Context, sid string) error {
			*deleted = append(*deleted, sid)
			return nil
		},
	}
}

func TestRunValidate(t *testing.T) {
	active := Account{ID: "u1", Active: true}

	var touched int
	var deleted []string
	res := RunValidate(context.Background(), "good", validateDeps("u1", active, nil, &touched, &deleted))
	require.Equal(t, ValidateFailureNone, res.Failure)
	assert.Equal(t, "s1", res.Claims.SessionID)
	assert.Equal(t, 1, touched)

	res = RunValidate(context.Background(), "expired", validateDeps("u1", active, nil, &touched, &deleted))
	assert.Equal(t, ValidateFailureExpired, res.Failure)
	res = RunValidate(context.Background(), "junk", validateDeps("u1", active, nil, &touched, &deleted))
	assert.Equal(t, ValidateFailureMalformed, res.Failure)
	res = RunValidate(context.Background(), "good", validateDeps("", active, nil, &touched, &deleted))
	assert.Equal(t, ValidateFailureSessionNotFound, res.Failure)
	res = RunValidate(context.Background(), "good", validateDeps("u2", active, nil, &touched, &deleted))
	assert.Equal(t, ValidateFailureSessionNotFound, res.Failure)
	assert.Empty(t, deleted)

	res = RunValidate(context.Background(), "good", validateDeps("u1", Account{}, errNoAccount, &touched, &deleted))
	assert.Equal(t, ValidateFailureAccountNotFound, res.Failure)
	res = RunValidate(context.Background(), "good", validateDeps("u1", Account{ID: "u1"}, nil, &touched, &deleted))
	assert.Equal(t, ValidateFailureInactive, res.Failure)
	assert.Equal(t, []string{"s1", "s1"}, deleted)
	assert.Equal(t, 1, touched)
}

func TestServiceInitialized(t *testing.T) {
	assert.False(t, Service{}.Initialized())

	var touched int
	var deleted []string
	svc := New(Deps{Validate: validateDeps("u1", Account{ID: "u1", Active: true}, nil, &touched, &deleted)})
	assert.True(t, svc.Initialized())
}
