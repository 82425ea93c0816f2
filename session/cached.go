package session

import (
	"context"
	"errors"
	"time"
)

// CachedRepository mirrors a durable repository in memory. Reads are served
// from the mirror; writes go to the durable store first and are applied to
// the mirror only when the durable write succeeds, so a storage failure never
// leaves the mirror ahead of the persisted state.
type CachedRepository struct {
	durable Repository
	mirror  *MemoryRepository
}

// NewCachedRepository wraps durable. Call [CachedRepository.Reload] before
// serving traffic.
func NewCachedRepository(durable Repository) *CachedRepository {
	return &CachedRepository{
		durable: durable,
		mirror:  NewMemoryRepository(),
	}
}

// Reload rebuilds the mirror from the durable store and returns the number
// of sessions loaded.
func (c *CachedRepository) Reload(ctx context.Context) (int, error) {
	sessions, err := c.durable.List(ctx)
	if err != nil {
		return 0, err
	}
	c.mirror.replaceAll(sessions)
	return len(sessions), nil
}

// Len returns the number of mirrored sessions.
func (c *CachedRepository) Len() int {
	return c.mirror.count()
}

func (c *CachedRepository) Create(ctx context.Context, s *Session, maxPerUser int) ([]string, error) {
	evicted, err := c.durable.Create(ctx, s, maxPerUser)
	if err != nil {
		return nil, err
	}
	for _, id := range evicted {
		c.mirror.remove(id)
	}
	c.mirror.put(s)
	return evicted, nil
}

// Get serves from the mirror and falls back to the durable store on a miss,
// which covers sessions written by other processes.
func (c *CachedRepository) Get(ctx context.Context, id string) (*Session, error) {
	s, err := c.mirror.Get(ctx, id)
	if err == nil {
		return s, nil
	}

	s, err = c.durable.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mirror.put(s)
	return s, nil
}

func (c *CachedRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if err := c.durable.Touch(ctx, id, at); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.mirror.remove(id)
		}
		return err
	}
	if err := c.mirror.Touch(ctx, id, at); errors.Is(err, ErrNotFound) {
		if s, getErr := c.durable.Get(ctx, id); getErr == nil {
			c.mirror.put(s)
		}
	}
	return nil
}

func (c *CachedRepository) SwapRefreshHash(ctx context.Context, id string, expected, next [32]byte, at, expiresAt time.Time) error {
	err := c.durable.SwapRefreshHash(ctx, id, expected, next, at, expiresAt)
	switch {
	case err == nil:
		c.mirror.update(id, func(s *Session) {
			s.RefreshHash = next
			s.LastActive = at
			s.ExpiresAt = expiresAt
		})
		return nil
	case errors.Is(err, ErrRefreshMismatch), errors.Is(err, ErrNotFound):
		c.mirror.remove(id)
		return err
	default:
		return err
	}
}

func (c *CachedRepository) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := c.durable.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	c.mirror.remove(id)
	return existed, nil
}

func (c *CachedRepository) DeleteForUserExcept(ctx context.Context, userID, keepID string) (int, error) {
	n, err := c.durable.DeleteForUserExcept(ctx, userID, keepID)
	if err != nil {
		return 0, err
	}
	c.mirror.removeForUserExcept(userID, keepID)
	return n, nil
}

// ListForUser reads the durable store so listings include sessions created
// by other processes.
func (c *CachedRepository) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	return c.durable.ListForUser(ctx, userID)
}

func (c *CachedRepository) List(ctx context.Context) ([]*Session, error) {
	return c.durable.List(ctx)
}

func (c *CachedRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := c.durable.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	c.mirror.removeExpired(now)
	return n, nil
}
