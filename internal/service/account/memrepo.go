package account

import (
	"context"
	"sync"

	"chessweb/internal/domain"
)

// memrepo is an in-memory account repository for development and tests.
type memrepo struct {
	mu    sync.RWMutex
	users map[string]*domain.User // username -> user
}

func NewMemoryRepository() Repository {
	return &memrepo{users: make(map[string]*domain.User)}
}

func (m *memrepo) Insert(ctx context.Context, user *domain.User) error {
	if user == nil {
		return ErrDuplicateUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Username]; exists {
		return ErrDuplicateUser
	}
	copied := *user
	m.users[user.Username] = &copied
	return nil
}

func (m *memrepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[username]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}
