package pipeline

import (
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a bucket refilling at tokensPerSecond with a burst
// of tokensPerSecond*burstMultiplier. A nil clock uses time.Now.
func NewTokenBucket(tokensPerSecond, burstMultiplier float64, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	maxTokens := tokensPerSecond * burstMultiplier
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: tokensPerSecond,
		lastRefill: now(),
		now:        now,
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time (must be called with lock held).
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.refillRate
		if tb.tokens > tb.maxTokens {
			tb.tokens = tb.maxTokens
		}
	}
	tb.lastRefill = now
}

// RateLimitConfig configures submission throttling.
type RateLimitConfig struct {
	GlobalTPS       float64
	PerAccountTPS   float64
	BurstMultiplier float64
}

// DefaultRateLimitConfig returns sensible submission limits.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalTPS:       50,
		PerAccountTPS:   5,
		BurstMultiplier: 2,
	}
}

// SubmissionLimiter throttles submissions globally and per account key.
type SubmissionLimiter struct {
	mu             sync.Mutex
	globalBucket   *TokenBucket
	accountBuckets map[string]*TokenBucket
	config         *RateLimitConfig
	now            func() time.Time
}

// NewSubmissionLimiter creates a limiter from config. A nil clock uses
// time.Now.
func NewSubmissionLimiter(config *RateLimitConfig, now func() time.Time) *SubmissionLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	defaults := DefaultRateLimitConfig()
	if config.GlobalTPS <= 0 {
		config.GlobalTPS = defaults.GlobalTPS
	}
	if config.PerAccountTPS <= 0 {
		config.PerAccountTPS = defaults.PerAccountTPS
	}
	if config.BurstMultiplier <= 0 {
		config.BurstMultiplier = defaults.BurstMultiplier
	}
	if now == nil {
		now = time.Now
	}
	return &SubmissionLimiter{
		globalBucket:   NewTokenBucket(config.GlobalTPS, config.BurstMultiplier, now),
		accountBuckets: make(map[string]*TokenBucket),
		config:         config,
		now:            now,
	}
}

// Allow reports whether a submission for the account may proceed, consuming
// a global and a per-account token if so.
func (sl *SubmissionLimiter) Allow(accountKey string) bool {
	if !sl.globalBucket.Allow() {
		return false
	}

	sl.mu.Lock()
	bucket, ok := sl.accountBuckets[accountKey]
	if !ok {
		bucket = NewTokenBucket(sl.config.PerAccountTPS, sl.config.BurstMultiplier, sl.now)
		sl.accountBuckets[accountKey] = bucket
	}
	sl.mu.Unlock()

	return bucket.Allow()
}
