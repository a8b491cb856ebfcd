package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/web3-frozen/yield-guardian/internal/metrics"
)

// Redis is a Cache shared between replicas. Hit/miss counters are local to
// this process. Redis errors are logged and treated as misses.
type Redis struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedis connects to redisURL and verifies the connection. Keys are
// namespaced with prefix.
func NewRedis(redisURL, password, prefix string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{rdb: rdb, prefix: prefix, logger: logger}, nil
}

// Close shuts down the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache get failed", "key", key, "error", err)
		}
		r.misses.Add(1)
		metrics.CacheRequestsTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	r.hits.Add(1)
	metrics.CacheRequestsTotal.WithLabelValues("redis", "hit").Inc()
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.rdb.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		r.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}

// Stats reports hit/miss counters. Size is the number of keys under the
// prefix, or zero if Redis cannot be scanned.
func (r *Redis) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	size := 0
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		size = 0
	}

	hits, misses := r.hits.Load(), r.misses.Load()
	return Stats{
		Backend: "redis",
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
}
