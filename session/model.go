package session

import "time"

// Session is the persisted record of one login.
type Session struct {
	ID        string
	UserID    string
	IP        string
	UserAgent string

	RefreshHash [32]byte

	CreatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the session's absolute lifetime has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a copy that shares no state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// lessRecent orders sessions for eviction: oldest activity first, ties by id.
func lessRecent(a, b *Session) bool {
	if !a.LastActive.Equal(b.LastActive) {
		return a.LastActive.Before(b.LastActive)
	}
	return a.ID < b.ID
}
