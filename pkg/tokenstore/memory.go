package tokenstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the credential in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Set stores token with the 7 or 30 day lifetime.
func (s *MemoryStore) Set(_ context.Context, token string, extended bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = s.now().Add(TTL(extended))
	return nil
}

// Get returns the stored credential, expiring it lazily.
func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	if !s.now().Before(s.expiresAt) {
		s.token = ""
		return "", ErrNoToken
	}
	return s.token, nil
}

// Clear drops the credential.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
	return nil
}
