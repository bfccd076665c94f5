package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Used by tests and single-process runs.
type MemoryStore struct {
	mutex  sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get retrieves a value
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, exists := s.values[key]
	return value, exists, nil
}

// Set stores a value
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.values[key] = value
	return nil
}

// Size returns the number of keys held
func (s *MemoryStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.values)
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
