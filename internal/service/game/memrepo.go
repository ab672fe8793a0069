package game

import (
	"context"
	"sync"

	"chessweb/internal/domain"
)

// memrepo is an in-memory repository used for development when no DB is
// configured, and by the test suite.
type memrepo struct {
	mu     sync.RWMutex
	boards map[string]*domain.BoardState // owner -> state
}

func NewMemoryRepository() Repository {
	return &memrepo{boards: make(map[string]*domain.BoardState)}
}

func (m *memrepo) Get(ctx context.Context, owner string) (*domain.BoardState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.boards[owner]
	if !ok {
		return nil, nil
	}
	return cloneState(state), nil
}

func (m *memrepo) Create(ctx context.Context, state *domain.BoardState) error {
	if state == nil {
		return ErrDuplicateBoard
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.boards[state.Owner]; exists {
		return ErrDuplicateBoard
	}
	m.boards[state.Owner] = cloneState(state)
	return nil
}

func (m *memrepo) Update(ctx context.Context, state *domain.BoardState, expectedVersion int64) error {
	if state == nil {
		return ErrVersionConflict
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.boards[state.Owner]
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := cloneState(state)
	next.Version = expectedVersion + 1
	m.boards[state.Owner] = next
	return nil
}

func cloneState(state *domain.BoardState) *domain.BoardState {
	copied := *state
	copied.MovesUCI = append([]string(nil), state.MovesUCI...)
	return &copied
}
