package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements Cache interface using in-memory storage
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]*cacheItem
	done    chan struct{}
	once    sync.Once
	nowFunc func() time.Time
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates an in-memory cache that sweeps expired entries
// every sweepInterval (one minute when zero).
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	mc := &MemoryCache{
		data:    make(map[string]*cacheItem),
		done:    make(chan struct{}),
		nowFunc: time.Now,
	}

	go mc.sweep(sweepInterval)

	return mc
}

func (m *MemoryCache) live(key string) (*cacheItem, bool) {
	item, ok := m.data[key]
	if !ok || !m.nowFunc().Before(item.expiration) {
		return nil, false
	}
	return item, true
}

// Get retrieves a value from cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.live(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores a value in cache
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = &cacheItem{
		value:      append([]byte(nil), value...),
		expiration: m.nowFunc().Add(ttl),
	}
	return nil
}

// Delete removes a value from cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Ping always succeeds
func (m *MemoryCache) Ping(ctx context.Context) error { return nil }

// Len returns the number of stored entries, expired or not
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryCache) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	for key, item := range m.data {
		if !now.Before(item.expiration) {
			delete(m.data, key)
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (m *MemoryCache) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
