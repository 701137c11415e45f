// Package progress holds per-job percent and status messages that pollers
// read while a download runs.
package progress

import (
	"context"
	"sync"
	"time"
)

// KV is the key-value contract the tracker is built on. Implementations
// must be safe for concurrent use; writes are last-write-wins.
type KV interface {
	Set(ctx context.Context, key, value string)
	Get(ctx context.Context, key, def string) string
}

type memoryItem struct {
	value     string
	updatedAt time.Time
}

// MemoryStore is an in-process KV with time-based eviction.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// Set stores value under key.
func (s *MemoryStore) Set(ctx context.Context, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memoryItem{value: value, updatedAt: s.now()}
}

// Get returns the value for key, or def when the key is absent.
func (s *MemoryStore) Get(ctx context.Context, key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		return def
	}
	return item.value
}

// Sweep removes keys not written for longer than ttl and returns how many
// were removed.
func (s *MemoryStore) Sweep(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, item := range s.items {
		if item.updatedAt.Before(cutoff) {
			delete(s.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
