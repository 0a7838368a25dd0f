package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxKeys bounds a memory cache when no limit is given.
const DefaultMaxKeys = 1000

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is a bounded in-process Cache. When full, expired entries are
// purged first, then the entry closest to expiry is evicted.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	maxKeys int
	now     func() time.Time
}

func NewMemory(maxKeys int) *Memory {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Memory{
		entries: make(map[string]entry),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(key, value, ttl)
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && !e.expired(m.now()) {
		return false, nil
	}
	m.store(key, value, ttl)
	return true, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// size counts stored entries, including expired ones not yet purged.
func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// store must be called with mu held.
func (m *Memory) store(key string, value []byte, ttl time.Duration) {
	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxKeys {
		m.evict(now)
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}
	m.entries[key] = entry{value: value, expiresAt: expiresAt}
}

func (m *Memory) evict(now time.Time) {
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxKeys {
		return
	}

	var victim string
	var victimExpiry time.Time
	for k, e := range m.entries {
		if victim == "" || earlier(e.expiresAt, victimExpiry) {
			victim = k
			victimExpiry = e.expiresAt
		}
	}
	delete(m.entries, victim)
}

// earlier orders expiry times with "never" last.
func earlier(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	if b.IsZero() {
		return true
	}
	return a.Before(b)
}
