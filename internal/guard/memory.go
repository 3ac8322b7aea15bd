package guard

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store: a map guarded by a mutex, with expiry
// checked on access. It satisfies the guard contract for a single node only;
// multi-node deployments must use RedisStore so all processes share one key
// space. Tests use it as a deterministic fake.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is a clock hook for expiry tests.
	now func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Acquire implements Store. The mutex makes check-and-set atomic.
func (s *MemoryStore) Acquire(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && e.expires.After(now) {
		return e.value, false, nil
	}
	s.entries[key] = memoryEntry{value: value, expires: now.Add(ttl)}
	return value, true, nil
}

// Put implements Store, keeping the entry's expiry.
func (s *MemoryStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.expires.After(s.now()) {
		s.entries[key] = memoryEntry{value: value, expires: e.expires}
	}
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// SetClock replaces the store's time source. Tests use it to step past the
// guard window without sleeping.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
