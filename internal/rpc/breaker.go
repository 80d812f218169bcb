package rpc

import (
	"sync"
	"time"

	"github.com/tempwallets/txrelay/internal/metrics"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that opens a
	// breaker.
	DefaultFailureThreshold = 3
	// DefaultResetTime is how long an open breaker blocks a provider before
	// it becomes eligible again.
	DefaultResetTime = 30 * time.Second
)

// BreakerState is a snapshot of one provider/chain breaker.
type BreakerState struct {
	Provider      string    `json:"provider"`
	ChainID       string    `json:"chain_id"`
	Failures      int       `json:"failures"`
	LastFailureAt time.Time `json:"last_failure_at"`
	Open          bool      `json:"open"`
}

type breakerEntry struct {
	failures      int
	lastFailureAt time.Time
	open          bool
}

// BreakerRegistry tracks failure state per (provider, chain) pair and decides
// whether a provider is eligible for traffic.
type BreakerRegistry struct {
	threshold int
	resetTime time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics

	mu     sync.Mutex
	states map[string]*breakerEntry
}

// BreakerOption configures a BreakerRegistry.
type BreakerOption func(*BreakerRegistry)

// WithFailureThreshold overrides the consecutive-failure threshold.
func WithFailureThreshold(n int) BreakerOption {
	return func(r *BreakerRegistry) { r.threshold = n }
}

// WithResetTime overrides the open-state cooldown.
func WithResetTime(d time.Duration) BreakerOption {
	return func(r *BreakerRegistry) { r.resetTime = d }
}

// WithBreakerClock injects the time source, for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(r *BreakerRegistry) { r.now = now }
}

// WithBreakerMetrics attaches the breaker-open gauge.
func WithBreakerMetrics(m *metrics.Metrics) BreakerOption {
	return func(r *BreakerRegistry) { r.metrics = m }
}

// NewBreakerRegistry creates a registry with default thresholds.
func NewBreakerRegistry(opts ...BreakerOption) *BreakerRegistry {
	r := &BreakerRegistry{
		threshold: DefaultFailureThreshold,
		resetTime: DefaultResetTime,
		now:       time.Now,
		states:    make(map[string]*breakerEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func breakerKey(provider, chainID string) string {
	return provider + "|" + chainID
}

// Allow reports whether the provider may receive traffic for the chain. An
// open breaker whose reset time has elapsed is closed in place (failure count
// cleared) and the provider allowed.
func (r *BreakerRegistry) Allow(provider, chainID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.states[breakerKey(provider, chainID)]
	if !ok || !e.open {
		return true
	}
	if r.now().Sub(e.lastFailureAt) > r.resetTime {
		e.open = false
		e.failures = 0
		r.setGauge(provider, chainID, false)
		return true
	}
	return false
}

// RecordFailure counts a final-attempt failure, opening the breaker once the
// threshold is reached.
func (r *BreakerRegistry) RecordFailure(provider, chainID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := breakerKey(provider, chainID)
	e, ok := r.states[key]
	if !ok {
		e = &breakerEntry{}
		r.states[key] = e
	}
	e.failures++
	e.lastFailureAt = r.now()
	if e.failures >= r.threshold {
		e.open = true
		r.setGauge(provider, chainID, true)
	}
}

// RecordSuccess clears the provider's failure history entirely.
func (r *BreakerRegistry) RecordSuccess(provider, chainID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := breakerKey(provider, chainID)
	if _, ok := r.states[key]; ok {
		delete(r.states, key)
		r.setGauge(provider, chainID, false)
	}
}

// State returns the breaker snapshot for a provider/chain pair.
func (r *BreakerRegistry) State(provider, chainID string) BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := BreakerState{Provider: provider, ChainID: chainID}
	if e, ok := r.states[breakerKey(provider, chainID)]; ok {
		st.Failures = e.failures
		st.LastFailureAt = e.lastFailureAt
		st.Open = e.open
	}
	return st
}

// Snapshot returns all tracked breaker states.
func (r *BreakerRegistry) Snapshot() []BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BreakerState, 0, len(r.states))
	for key, e := range r.states {
		provider, chainID := splitBreakerKey(key)
		out = append(out, BreakerState{
			Provider:      provider,
			ChainID:       chainID,
			Failures:      e.failures,
			LastFailureAt: e.lastFailureAt,
			Open:          e.open,
		})
	}
	return out
}

func splitBreakerKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func (r *BreakerRegistry) setGauge(provider, chainID string, open bool) {
	if r.metrics != nil {
		r.metrics.SetBreakerOpen(provider, chainID, open)
	}
}
