package account

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]string
	byEmail    map[string]string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (m *MemoryRepository) Insert(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUniqueLocked(u); err != nil {
		return err
	}
	m.putLocked(u.Clone())
	return nil
}

func (m *MemoryRepository) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (m *MemoryRepository) FindByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok || email == "" {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *MemoryRepository) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.byID[u.ID]
	if !ok {
		return ErrNotFound
	}
	if err := m.checkUniqueLocked(u); err != nil {
		return err
	}
	m.removeLocked(old)
	m.putLocked(u.Clone())
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.removeLocked(u)
	return nil
}

func (m *MemoryRepository) List(_ context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MemoryRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

func (m *MemoryRepository) checkUniqueLocked(u *User) error {
	if id, ok := m.byUsername[u.Username]; ok && id != u.ID {
		return ErrDuplicateUsername
	}
	if u.Email != "" {
		if id, ok := m.byEmail[u.Email]; ok && id != u.ID {
			return ErrDuplicateEmail
		}
	}
	return nil
}

func (m *MemoryRepository) putLocked(u *User) {
	m.byID[u.ID] = u
	m.byUsername[u.Username] = u.ID
	if u.Email != "" {
		m.byEmail[u.Email] = u.ID
	}
}

func (m *MemoryRepository) removeLocked(u *User) {
	delete(m.byID, u.ID)
	delete(m.byUsername, u.Username)
	if u.Email != "" {
		delete(m.byEmail, u.Email)
	}
}
