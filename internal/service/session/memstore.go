package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chessweb/internal/domain"
)

// MemoryStore is a development-only fallback used when no Redis is
// configured. Sessions do not survive a process restart.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memEntry // hashed token -> entry
}

type memEntry struct {
	session   Session
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{ttl: ttl, sessions: make(map[string]memEntry)}
}

func (m *MemoryStore) Create(ctx context.Context, user *domain.User) (*Session, error) {
	sess := Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.sessions[sessionKey(sess.Token)] = memEntry{session: sess, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
	copied := sess
	return &copied, nil
}

func (m *MemoryStore) Lookup(ctx context.Context, token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	key := sessionKey(token)
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.sessions, key)
		return nil, nil
	}
	entry.expiresAt = time.Now().Add(m.ttl)
	m.sessions[key] = entry
	copied := entry.session
	copied.Token = token
	return &copied, nil
}

func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, sessionKey(token))
	m.mu.Unlock()
	return nil
}
