package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

// Memory is the in-process shared-cache backend. It is the only on-disk-free
// fallback permitted when the networked backend is unreachable (§6.5
// forbids a durable local cache — see DESIGN.md for why bbolt was dropped),
// and it is also a first-class backend choice (cache.backend=in-process) for
// single-instance deployments.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	degraded bool
}

// NewMemory returns an empty in-process cache. Pass degraded=true when this
// instance is acting as a fallback for an unreachable networked backend, so
// Degraded() reports it.
func NewMemory(degraded bool) *Memory {
	return &Memory{entries: make(map[string]memoryEntry), degraded: degraded}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expireAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: stored, expireAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *Memory) Degraded() bool { return m.degraded }
