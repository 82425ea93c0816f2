package session

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps sessions in process memory. It is safe for
// concurrent use; each method holds a single lock for its whole read-modify-write.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (m *MemoryRepository) Create(_ context.Context, s *Session, maxPerUser int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.userSessionsLocked(s.UserID, s.ID)
	var evicted []string
	if maxPerUser > 0 {
		excess := len(existing) + 1 - maxPerUser
		sort.Slice(existing, func(i, j int) bool { return lessRecent(existing[i], existing[j]) })
		for i := 0; i < excess && i < len(existing); i++ {
			m.removeLocked(existing[i].ID)
			evicted = append(evicted, existing[i].ID)
		}
	}

	m.putLocked(s.Clone())
	return evicted, nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryRepository) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastActive = at
	return nil
}

func (m *MemoryRepository) SwapRefreshHash(_ context.Context, id string, expected, next [32]byte, at, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Expired(at) {
		m.removeLocked(id)
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare(s.RefreshHash[:], expected[:]) != 1 {
		m.removeLocked(id)
		return ErrRefreshMismatch
	}

	s.RefreshHash = next
	s.LastActive = at
	s.ExpiresAt = expiresAt
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) (bool, error) {
	return m.remove(id), nil
}

func (m *MemoryRepository) DeleteForUserExcept(_ context.Context, userID, keepID string) (int, error) {
	return m.removeForUserExcept(userID, keepID), nil
}

func (m *MemoryRepository) ListForUser(_ context.Context, userID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.userSessionsLocked(userID, "")
	for i := range out {
		out[i] = out[i].Clone()
	}
	sort.Slice(out, func(i, j int) bool { return lessRecent(out[j], out[i]) })
	return out, nil
}

func (m *MemoryRepository) List(_ context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	return m.removeExpired(now), nil
}

// The remove helpers cannot fail. CachedRepository uses them on its mirror.

func (m *MemoryRepository) remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id)
}

func (m *MemoryRepository) removeForUserExcept(userID, keepID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id := range m.byUser[userID] {
		if id == keepID {
			continue
		}
		if m.removeLocked(id) {
			removed++
		}
	}
	return removed
}

func (m *MemoryRepository) removeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			m.removeLocked(id)
			removed++
		}
	}
	return removed
}

// replaceAll swaps the whole content for sessions. Used by CachedRepository.Reload.
func (m *MemoryRepository) replaceAll(sessions []*Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make(map[string]*Session, len(sessions))
	m.byUser = make(map[string]map[string]struct{})
	for _, s := range sessions {
		m.putLocked(s.Clone())
	}
}

// put inserts or replaces s without cap enforcement.
func (m *MemoryRepository) put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(s.Clone())
}

func (m *MemoryRepository) update(id string, fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		fn(s)
	}
}

func (m *MemoryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryRepository) putLocked(s *Session) {
	if old, ok := m.sessions[s.ID]; ok && old.UserID != s.UserID {
		m.removeLocked(s.ID)
	}
	m.sessions[s.ID] = s
	ids, ok := m.byUser[s.UserID]
	if !ok {
		ids = make(map[string]struct{})
		m.byUser[s.UserID] = ids
	}
	ids[s.ID] = struct{}{}
}

func (m *MemoryRepository) removeLocked(id string) bool {
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	delete(m.sessions, id)
	if ids, ok := m.byUser[s.UserID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
	return true
}

func (m *MemoryRepository) userSessionsLocked(userID, skipID string) []*Session {
	ids := m.byUser[userID]
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if id == skipID {
			continue
		}
		out = append(out, m.sessions[id])
	}
	return out
}
