package nonce

import (
	"context"
	"fmt"
	"sync"
)

// Fetcher returns the node's pending nonce for an address.
type Fetcher func(ctx context.Context) (uint64, error)

// Manager caches the next nonce per key. The cache is seeded from the node on
// first use and advanced locally afterwards; Reset drops it so the next call
// reseeds. Callers serialize per key through Queue.
type Manager struct {
	mu   sync.Mutex
	next map[string]uint64
}

// NewManager creates an empty nonce manager.
func NewManager() *Manager {
	return &Manager{next: make(map[string]uint64)}
}

// Key builds the cache key for an address on a network.
func Key(network, address string) string {
	return network + ":" + address
}

// Next returns the nonce to use and advances the cache.
func (m *Manager) Next(ctx context.Context, key string, fetch Fetcher) (uint64, error) {
	m.mu.Lock()
	if n, ok := m.next[key]; ok {
		m.next[key] = n + 1
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	seeded, err := fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.next[key]
	if !ok || seeded > n {
		n = seeded
	}
	m.next[key] = n + 1
	return n, nil
}

// Reset forgets the cached nonce for key.
func (m *Manager) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.next, key)
}

// Peek returns the cached next nonce, if any.
func (m *Manager) Peek(key string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.next[key]
	return n, ok
}
