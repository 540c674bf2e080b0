package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryItem struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// Memory is an in-process Cache. Expiry is evaluated lazily against the
// injected clock, which lets tests move time forward deterministically.
type Memory struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	now    func() time.Time
	closed bool
}

// NewMemory returns an empty cache. A nil clock means time.Now.
func NewMemory(clock func() time.Time) *Memory {
	if clock == nil {
		clock = time.Now
	}
	return &Memory{items: make(map[string]memoryItem), now: clock}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	it, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if !it.expires.IsZero() && !m.now().Before(it.expires) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	return slices.Clone(it.value), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.put(key, value, ttl)
	return nil
}

func (m *Memory) SetMulti(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, e := range entries {
		m.put(e.Key, e.Value, e.TTL)
	}
	return nil
}

func (m *Memory) put(key string, value []byte, ttl time.Duration) {
	it := memoryItem{value: slices.Clone(value)}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.items[key] = it
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Len counts entries that have not expired yet.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, it := range m.items {
		if it.expires.IsZero() || now.Before(it.expires) {
			n++
		}
	}
	return n
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = nil
	return nil
}
