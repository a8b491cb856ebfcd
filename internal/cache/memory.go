package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/web3-frozen/yield-guardian/internal/metrics"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process cache. Expired entries are dropped lazily on read
// and by a background sweep every sweepInterval.
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry

	hits   atomic.Uint64
	misses atomic.Uint64

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemory creates a Memory cache and starts its sweep goroutine. A
// non-positive sweepInterval disables the sweep.
func NewMemory(sweepInterval time.Duration) *Memory {
	m := &Memory{
		items: make(map[string]entry),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go m.sweepLoop(sweepInterval)
	}
	return m
}

// Get returns the value for key if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()

	if ok && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, still := m.items[key]; still && !m.now().Before(cur.expiresAt) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		ok = false
	}

	if !ok {
		m.misses.Add(1)
		metrics.CacheRequestsTotal.WithLabelValues("memory", "miss").Inc()
		return nil, false
	}
	m.hits.Add(1)
	metrics.CacheRequestsTotal.WithLabelValues("memory", "hit").Inc()
	return e.value, true
}

// Set stores value under key for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// Stats reports size and hit/miss counters.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	size := len(m.items)
	m.mu.RUnlock()
	hits, misses := m.hits.Load(), m.misses.Load()
	return Stats{
		Backend: "memory",
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.items {
		if !now.Before(e.expiresAt) {
			delete(m.items, k)
		}
	}
}
