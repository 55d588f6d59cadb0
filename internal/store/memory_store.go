package store

import (
	"sort"
	"sync"

	"applydesk/internal/domain"
)

// MemoryStore keeps accounts and positions in-process, for tests and local
// development without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User // key: user ID
	email     map[string]string      // email -> user ID
	positions map[string]domain.Position
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		email:     make(map[string]string),
		positions: make(map[string]domain.Position),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.email[u.Email]; ok && existingID != u.ID {
		return ErrDuplicateEmail
	}
	if old, ok := m.users[u.ID]; ok && old.Email != u.Email {
		delete(m.email, old.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByResetToken scans for a user holding the reset token.
func (m *MemoryStore) GetUserByResetToken(token string) (domain.User, bool, error) {
	if token == "" {
		return domain.User{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ResetPasswordToken == token {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

// ListUsersByOrg returns every staff account in the organization.
func (m *MemoryStore) ListUsersByOrg(orgID string) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0)
	for _, u := range m.users {
		if u.OrgID == orgID {
			res = append(res, u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// DeleteUser removes the account.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		delete(m.email, u.Email)
		delete(m.users, id)
	}
	return nil
}

// SavePosition stores or replaces a position.
func (m *MemoryStore) SavePosition(p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
	return nil
}

// GetPosition retrieves a position by ID.
func (m *MemoryStore) GetPosition(id string) (domain.Position, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	return p, ok, nil
}

// ListPositionsByOrg returns an organization's positions, newest first.
func (m *MemoryStore) ListPositionsByOrg(orgID string) ([]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Position, 0)
	for _, p := range m.positions {
		if p.OrgID == orgID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}
