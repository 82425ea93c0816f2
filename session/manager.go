package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/pipelinedash/authcore/internal"
)

// Config controls session lifetime and the per-user cap.
type Config struct {
	MaxPerUser int
	Lifetime   time.Duration
	Now        func() time.Time
	// Logger receives failures that do not change an operation's outcome.
	// The zero value discards them.
	Logger zerolog.Logger
}

// CreateParams describes a new session. ID may be preallocated with
// [Manager.NewID] so tokens can embed it before the record exists.
type CreateParams struct {
	ID           string
	UserID       string
	IP           string
	UserAgent    string
	RefreshToken string
}

// Manager implements the session lifecycle on top of a [Repository].
type Manager struct {
	repo   Repository
	config Config
}

// NewManager returns a Manager over repo.
func NewManager(repo Repository, cfg Config) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("session repository is required")
	}
	if cfg.MaxPerUser < 1 {
		return nil, errors.New("max sessions per user must be >= 1")
	}
	if cfg.Lifetime <= 0 {
		return nil, errors.New("session lifetime must be > 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{repo: repo, config: cfg}, nil
}

// Repository returns the underlying repository.
func (m *Manager) Repository() Repository { return m.repo }

// NewID returns a fresh unguessable session id.
func (m *Manager) NewID() (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

// Create stores a new session and enforces the per-user cap. It returns the
// created session and the ids evicted to make room for it.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Session, []string, error) {
	if p.UserID == "" {
		return nil, nil, errors.New("session user id is required")
	}
	if p.ID == "" {
		id, err := m.NewID()
		if err != nil {
			return nil, nil, err
		}
		p.ID = id
	}

	now := m.config.Now()
	s := &Session{
		ID:          p.ID,
		UserID:      p.UserID,
		IP:          p.IP,
		UserAgent:   p.UserAgent,
		RefreshHash: internal.HashToken(p.RefreshToken),
		CreatedAt:   now,
		LastActive:  now,
		ExpiresAt:   now.Add(m.config.Lifetime),
	}

	evicted, err := m.repo.Create(ctx, s, m.config.MaxPerUser)
	if err != nil {
		return nil, nil, err
	}
	return s, evicted, nil
}

// Get returns a live session. Expired records are removed and reported as
// ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.config.Now()) {
		// The session is dead either way; a failed delete leaves it to the sweeper.
		if _, err := m.repo.Delete(ctx, id); err != nil {
			m.config.Logger.Warn().Err(err).
				Str("session_id", internal.ShortID(id)).
				Msg("delete expired session failed")
		}
		return nil, ErrNotFound
	}
	return s, nil
}

// Exists reports whether id names a live session.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	_, err := m.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Touch bumps LastActive. A missing session yields ErrNotFound, which
// callers must treat as invalid.
func (m *Manager) Touch(ctx context.Context, id string) error {
	return m.repo.Touch(ctx, id, m.config.Now())
}

// CompareAndRotate replaces the stored refresh token with next when presented
// is the current one. A mismatch deletes the session (ErrRefreshMismatch).
func (m *Manager) CompareAndRotate(ctx context.Context, id, presented, next string) error {
	now := m.config.Now()
	return m.repo.SwapRefreshHash(ctx, id,
		internal.HashToken(presented),
		internal.HashToken(next),
		now, now.Add(m.config.Lifetime),
	)
}

// RotateRefreshToken unconditionally installs next as the session's refresh
// token.
func (m *Manager) RotateRefreshToken(ctx context.Context, id, next string) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	now := m.config.Now()
	return m.repo.SwapRefreshHash(ctx, id, s.RefreshHash, internal.HashToken(next), now, now.Add(m.config.Lifetime))
}

// Invalidate removes a session. It is idempotent.
func (m *Manager) Invalidate(ctx context.Context, id string) (bool, error) {
	return m.repo.Delete(ctx, id)
}

// InvalidateAllExcept removes every session of userID except keepID and
// returns how many were removed.
func (m *Manager) InvalidateAllExcept(ctx context.Context, userID, keepID string) (int, error) {
	return m.repo.DeleteForUserExcept(ctx, userID, keepID)
}

// InvalidateAll removes every session of userID.
func (m *Manager) InvalidateAll(ctx context.Context, userID string) (int, error) {
	return m.repo.DeleteForUserExcept(ctx, userID, "")
}

// ListForUser returns userID's live sessions, most recently active first.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := m.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.config.Now()
	live := sessions[:0]
	for _, s := range sessions {
		if !s.Expired(now) {
			live = append(live, s)
		}
	}
	return live, nil
}

// SweepExpired prunes expired sessions and returns how many were removed.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	return m.repo.DeleteExpired(ctx, m.config.Now())
}
