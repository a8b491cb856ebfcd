// Package cache provides the TTL key/value store used by the yield
// aggregator, either in-process or shared through Redis.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values with a per-entry TTL. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Stats() Stats
}

// Stats are best-effort counters; concurrent updates may be observed out of
// order.
type Stats struct {
	Backend string  `json:"backend"`
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func hitRate(hits, misses uint64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
