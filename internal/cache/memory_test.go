package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestMemory(t *testing.T) (*Memory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(0)
	m.now = clock.Now
	t.Cleanup(m.Close)
	return m, clock
}

func TestMemorySetGet(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	m.Set(ctx, "yields:USDC", []byte(`[1,2]`), time.Minute)
	got, ok := m.Get(ctx, "yields:USDC")
	if !ok {
		t.Fatal("Get should hit after Set")
	}
	if string(got) != `[1,2]` {
		t.Errorf("Get = %s, want [1,2]", got)
	}

	if _, ok := m.Get(ctx, "yields:DAI"); ok {
		t.Error("Get should miss for unknown key")
	}

	st := m.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Size != 1 {
		t.Errorf("Stats = %+v, want 1 hit, 1 miss, size 1", st)
	}
	if st.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", st.HitRate)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m, clock := newTestMemory(t)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), 300*time.Second)
	clock.Advance(299 * time.Second)
	if _, ok := m.Get(ctx, "k"); !ok {
		t.Fatal("entry should still be live before TTL")
	}

	clock.Advance(time.Second)
	if _, ok := m.Get(ctx, "k"); ok {
		t.Error("entry should be expired at TTL")
	}
	if m.Stats().Size != 0 {
		t.Error("expired entry should be removed on read")
	}
}

func TestMemorySweep(t *testing.T) {
	m, clock := newTestMemory(t)
	ctx := context.Background()

	m.Set(ctx, "short", []byte("1"), time.Second)
	m.Set(ctx, "long", []byte("2"), time.Hour)
	clock.Advance(time.Minute)
	m.sweep()

	if st := m.Stats(); st.Size != 1 {
		t.Errorf("Size after sweep = %d, want 1", st.Size)
	}
}

func TestMemoryDelete(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	m.Set(ctx, "yields:USDC", []byte("a"), time.Minute)
	m.Set(ctx, "yields:DAI", []byte("b"), time.Minute)

	m.Delete(ctx, "yields:USDC")
	if _, ok := m.Get(ctx, "yields:USDC"); ok {
		t.Error("Get should miss after Delete")
	}
	if _, ok := m.Get(ctx, "yields:DAI"); !ok {
		t.Error("Delete should leave other keys alone")
	}
	if m.Stats().Size != 1 {
		t.Errorf("Size = %d, want 1", m.Stats().Size)
	}
}

func TestMemoryConcurrent(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			m.Set(ctx, key, []byte("v"), time.Minute)
			m.Get(ctx, key)
			m.Delete(ctx, key)
		}(i)
	}
	wg.Wait()

	st := m.Stats()
	if st.Hits+st.Misses != 20 {
		t.Errorf("hits+misses = %d, want 20", st.Hits+st.Misses)
	}
}

func TestMemoryCloseIdempotent(t *testing.T) {
	m := NewMemory(10 * time.Millisecond)
	m.Close()
	m.Close()
}
