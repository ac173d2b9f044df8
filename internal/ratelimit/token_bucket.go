// Package ratelimit implements token bucket rate limiting for outbound calls.
//
// The token bucket algorithm allows bursts up to the bucket capacity while
// holding a sustained rate over time. Third-party lookup providers publish
// quotas in exactly that shape (for example 45 requests per minute).
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a thread-safe token bucket rate limiter.
//
// The bucket has a fixed capacity and refills continuously at a constant
// rate. Each request consumes one token. When the bucket is empty, requests
// are rejected until tokens refill.
//
// Example usage:
//
//	bucket := NewTokenBucket(45, 45.0/60) // 45 burst, 45 tokens per minute
//	if bucket.Allow() {
//	    // call the provider
//	}
type TokenBucket struct {
	capacity   float64    // Maximum number of tokens the bucket can hold
	tokens     float64    // Current number of tokens in the bucket
	refillRate float64    // Tokens added per second
	lastRefill time.Time  // Last time tokens were added to the bucket
	mu         sync.Mutex // Protects all bucket state
	hitCount   int64      // Number of requests that were rate limited
	totalCount int64      // Total number of requests processed
	now        func() time.Time
}

// NewTokenBucket creates a new token bucket with the specified capacity and
// refill rate in tokens per second. Fractional rates are allowed.
//
// The bucket starts full.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow attempts to consume one token from the bucket.
//
// Returns true if a token was available and consumed, false otherwise.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++

	now := tb.now()
	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}

	tb.hitCount++
	return false
}

// Stats returns how many requests were rejected and how many were seen.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}
