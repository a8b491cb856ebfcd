package cache

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	r, err := NewRedis("redis://"+mr.Addr(), "", "yg:", nil)
	if err != nil {
		mr.Close()
		t.Fatalf("NewRedis: %v", err)
	}
	return r, mr
}

func TestRedisSetGet(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	r.Set(ctx, "yields:USDC", []byte(`{"a":1}`), time.Minute)

	got, ok := r.Get(ctx, "yields:USDC")
	if !ok {
		t.Fatal("Get should hit after Set")
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Get = %s", got)
	}
	if !mr.Exists("yg:yields:USDC") {
		t.Error("key should be stored with prefix")
	}
}

func TestRedisTTL(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	r.Set(ctx, "k", []byte("v"), 300*time.Second)
	if ttl := mr.TTL("yg:k"); ttl != 300*time.Second {
		t.Errorf("TTL = %v, want 300s", ttl)
	}

	mr.FastForward(301 * time.Second)
	if _, ok := r.Get(ctx, "k"); ok {
		t.Error("Get should miss after TTL")
	}
}

func TestRedisDeleteAndStats(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	r.Set(ctx, "a", []byte("1"), time.Minute)
	r.Set(ctx, "b", []byte("2"), time.Minute)
	r.Get(ctx, "a")
	r.Delete(ctx, "a")
	r.Get(ctx, "a")

	st := r.Stats()
	if st.Backend != "redis" {
		t.Errorf("Backend = %q", st.Backend)
	}
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats = %+v, want 1 hit 1 miss", st)
	}
	if st.Size != 1 {
		t.Errorf("Size = %d, want 1", st.Size)
	}
}

func TestRedisUnavailableIsMiss(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer r.Close()

	mr.Close()

	ctx := context.Background()
	r.Set(ctx, "k", []byte("v"), time.Minute)
	if _, ok := r.Get(ctx, "k"); ok {
		t.Error("Get should miss when Redis is down")
	}
}

func TestRedisDeleteFailureIsLogged(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	var buf bytes.Buffer
	r, err := NewRedis("redis://"+mr.Addr(), "", "yg:", slog.New(slog.NewJSONHandler(&buf, nil)))
	if err != nil {
		mr.Close()
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()

	mr.Close()
	r.Delete(context.Background(), "yields:USDC")

	out := buf.String()
	if !strings.Contains(out, "cache delete failed") || !strings.Contains(out, "yields:USDC") {
		t.Errorf("log = %q, want delete failure for yields:USDC", out)
	}
}

func TestNewRedisBadURL(t *testing.T) {
	if _, err := NewRedis("not a url", "", "", nil); err == nil {
		t.Error("NewRedis should fail on invalid URL")
	}
}
