package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrQuotaExceeded is returned when a MemoryStore is full.
var ErrQuotaExceeded = errors.New("cache quota exceeded")

// MemoryStore is a thread-safe in-memory Store with a fixed entry quota.
// Overwriting an existing key never counts against the quota.
type MemoryStore struct {
	entries    map[string][]byte
	maxEntries int
	mu         sync.RWMutex
}

// NewMemoryStore creates a MemoryStore. maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string][]byte),
		maxEntries: maxEntries,
	}
}

func (s *MemoryStore) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (s *MemoryStore) Write(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		return ErrQuotaExceeded
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	s.entries[key] = data
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
