package storage

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryStore keeps everything in process. Used when no REDIS_URL is set and
// in tests.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]entry
	watchers watchers
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()

	m.watchers.notify(Change{Key: key, Op: OpSet})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()

	if existed {
		m.watchers.notify(Change{Key: key, Op: OpDelete})
	}
	return nil
}

func (m *MemoryStore) Watch(prefix string, fn func(Change)) func() {
	return m.watchers.add(prefix, fn)
}
