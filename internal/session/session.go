// Package session stores admin login sessions, either in process memory or in Redis.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pavelanni/examfix/internal/model"
)

// DefaultTTL is how long a login stays valid.
const DefaultTTL = 24 * time.Hour

// Store keeps login sessions keyed by an opaque token.
type Store interface {
	// Create issues a new token for username.
	Create(ctx context.Context, username string) (string, error)
	// Get returns the session for a token, or nil if it is unknown or expired.
	Get(ctx context.Context, token string) (*model.AuthSession, error)
	Delete(ctx context.Context, token string) error
	Close() error
}

// MemoryStore keeps sessions in a map. Sessions are lost on restart.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]model.AuthSession
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]model.AuthSession),
	}
}

func (m *MemoryStore) Create(_ context.Context, username string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = model.AuthSession{
		ID:        token,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.cleanupLocked(now)
	return token, nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (*model.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	if m.now().After(sess.ExpiresAt) {
		delete(m.sessions, token)
		return nil, nil
	}
	return &sess, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// cleanupLocked removes all expired sessions. Callers hold m.mu.
func (m *MemoryStore) cleanupLocked(now time.Time) {
	for k, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, k)
		}
	}
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
