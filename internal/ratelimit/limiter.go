package ratelimit

import (
	"fmt"
	"sync"

	"github.com/krati1611/smallhappinessclub/internal/observability"
)

// KeyedLimiter manages one token bucket per key, created lazily on first use.
// Keys name an outbound dependency (e.g. "geo:ip-api.com").
//
// Example usage:
//
//	limiter := NewKeyedLimiter(Config{Capacity: 45, PerMinute: 45, Enabled: true}, metrics)
//	if limiter.Allow("geo:ip-api.com") {
//	    // call the provider
//	}
type KeyedLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity  int  // Token bucket capacity (burst allowance)
	PerMinute int  // Tokens added per minute (sustained rate)
	Enabled   bool // Whether rate limiting is active
}

// NewKeyedLimiter creates a limiter with the given configuration.
func NewKeyedLimiter(config Config, metrics observability.MetricsRegistry) *KeyedLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &KeyedLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Allow reports whether a call for key may proceed. A disabled or nil limiter
// always allows.
func (kl *KeyedLimiter) Allow(key string) bool {
	if kl == nil || !kl.config.Enabled {
		return true
	}

	kl.metrics.IncrementRateLimitRequests(key)

	kl.mu.RLock()
	bucket, exists := kl.buckets[key]
	kl.mu.RUnlock()

	if !exists {
		kl.mu.Lock()
		bucket, exists = kl.buckets[key]
		if !exists {
			bucket = NewTokenBucket(kl.config.Capacity, float64(kl.config.PerMinute)/60)
			kl.buckets[key] = bucket
		}
		kl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		kl.metrics.IncrementRateLimitHits(key)
	}
	return allowed
}

// GetStats returns a snapshot of rate limiting statistics per key. A nil
// limiter has no stats.
func (kl *KeyedLimiter) GetStats() map[string]Stats {
	if kl == nil {
		return nil
	}
	kl.mu.RLock()
	defer kl.mu.RUnlock()

	stats := make(map[string]Stats, len(kl.buckets))
	for key, bucket := range kl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[key] = Stats{Key: key, Hits: hits, Total: total, HitRate: hitRate}
	}
	return stats
}

// Stats contains rate limiting statistics for a single key.
type Stats struct {
	Key     string  `json:"key"`
	Hits    int64   `json:"hits"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
}

// String returns a human-readable representation of the statistics.
func (s Stats) String() string {
	return fmt.Sprintf("%s: %d/%d hits (%.2f%%)", s.Key, s.Hits, s.Total, s.HitRate*100)
}
