package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrRefreshMismatch is returned by SwapRefreshHash when the presented
	// refresh hash is not the stored one. The session has been deleted.
	ErrRefreshMismatch = errors.New("refresh hash mismatch")
	// ErrStorageUnavailable wraps backend I/O failures.
	ErrStorageUnavailable = errors.New("session storage unavailable")
)

// Repository persists sessions. Implementations must make each method atomic
// with respect to the records it touches.
type Repository interface {
	// Create stores s and removes the least recently active sessions of the
	// same user so that at most maxPerUser remain. s itself is never evicted.
	// The ids of evicted sessions are returned.
	Create(ctx context.Context, s *Session, maxPerUser int) ([]string, error)

	// Get returns the stored record or ErrNotFound. Expiry is not checked.
	Get(ctx context.Context, id string) (*Session, error)

	// Touch sets LastActive to at. It returns ErrNotFound for unknown ids.
	Touch(ctx context.Context, id string, at time.Time) error

	// SwapRefreshHash replaces the stored refresh hash with next when the
	// stored hash equals expected, and extends the session to expiresAt.
	// A mismatch deletes the session and returns ErrRefreshMismatch. An
	// expired session is deleted and reported as ErrNotFound.
	SwapRefreshHash(ctx context.Context, id string, expected, next [32]byte, at, expiresAt time.Time) error

	// Delete removes a session and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteForUserExcept removes every session of userID other than keepID
	// and returns how many were removed. An empty keepID removes all.
	DeleteForUserExcept(ctx context.Context, userID, keepID string) (int, error)

	// ListForUser returns userID's sessions, most recently active first.
	ListForUser(ctx context.Context, userID string) ([]*Session, error)

	// List returns every stored session.
	List(ctx context.Context) ([]*Session, error)

	// DeleteExpired removes sessions whose ExpiresAt is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
