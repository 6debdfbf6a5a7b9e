package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/gazette-watch/internal/runguard"
)

// LockStore implements runguard.Store in memory. It only guards a single process.
type LockStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewLockStore constructs a LockStore.
func NewLockStore() *LockStore {
	return &LockStore{values: make(map[string]string)}
}

// Get returns the value for key.
func (s *LockStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", runguard.ErrNotFound
	}
	return v, nil
}

// Put stores value under key.
func (s *LockStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes key.
func (s *LockStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return runguard.ErrNotFound
	}
	delete(s.values, key)
	return nil
}
