// Package sequencer serializes transaction construction per account and
// caches each account's next sequence number between chain reads.
package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tempwallets/txrelay/internal/logging"
	"github.com/tempwallets/txrelay/internal/metrics"
)

const (
	// DefaultCacheTTL bounds how long a cached sequence value is trusted
	// before the chain is consulted again.
	DefaultCacheTTL = 30 * time.Second
	// DefaultLockTTL is how long an idle account entry survives before the
	// reaper removes it.
	DefaultLockTTL = time.Hour
)

// SequenceFetcher is the authoritative on-chain sequence/nonce lookup.
type SequenceFetcher interface {
	FetchSequence(ctx context.Context, key Key) (uint64, error)
}

// SequenceFetcherFunc adapts a function to the SequenceFetcher interface.
type SequenceFetcherFunc func(ctx context.Context, key Key) (uint64, error)

func (f SequenceFetcherFunc) FetchSequence(ctx context.Context, key Key) (uint64, error) {
	return f(ctx, key)
}

// SequenceFetchError wraps a failed chain lookup. The cache is left empty so
// the next caller re-reads ground truth.
type SequenceFetchError struct {
	Key Key
	Err error
}

func (e *SequenceFetchError) Error() string {
	return fmt.Sprintf("fetch sequence for %s: %v", e.Key, e.Err)
}

func (e *SequenceFetchError) Unwrap() error { return e.Err }

// entry holds one account's critical-section lock, cached sequence value and
// idle timestamp. The lock guards only the critical section; the cache cell
// and lastAccess are guarded by the registry mutex so InvalidateCache and the
// reaper never contend with an in-flight operation for the cache fields.
type entry struct {
	lock sync.Mutex

	cached    bool
	value     uint64
	updatedAt time.Time

	lastAccess time.Time
}

// Sequencer owns the per-account lock and sequence-cache registries.
type Sequencer struct {
	fetcher  SequenceFetcher
	log      *logging.Logger
	metrics  *metrics.Metrics
	cacheTTL time.Duration
	lockTTL  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[Key]*entry
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithCacheTTL overrides the sequence cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Sequencer) { s.cacheTTL = ttl }
}

// WithLockTTL overrides the idle-entry TTL used by Cleanup.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Sequencer) { s.lockTTL = ttl }
}

// WithMetrics attaches collectors for lock wait and registry size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sequencer) { s.metrics = m }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// New creates a Sequencer backed by the given chain fetcher.
func New(fetcher SequenceFetcher, log *logging.Logger, opts ...Option) *Sequencer {
	if log == nil {
		log = logging.NewDefault("sequencer")
	}
	s := &Sequencer{
		fetcher:  fetcher,
		log:      log,
		cacheTTL: DefaultCacheTTL,
		lockTTL:  DefaultLockTTL,
		now:      time.Now,
		entries:  make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithLock runs op under exclusive ownership of the account's critical
// section, passing it the account's next sequence value. On success the
// cached value advances by one; on any failure the cache entry is dropped so
// the next caller re-fetches from the chain. The lock is released on every
// exit path.
func (s *Sequencer) WithLock(ctx context.Context, address, network string, op func(ctx context.Context, sequence uint64) error) error {
	key, err := Normalize(address, network)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	waitStart := s.now()
	e := s.acquire(key)
	defer e.lock.Unlock()
	if s.metrics != nil {
		s.metrics.ObserveLockWait(s.now().Sub(waitStart))
	}

	seq, err := s.sequenceLocked(ctx, key, e)
	if err != nil {
		return err
	}

	if err := op(ctx, seq); err != nil {
		s.dropCache(e)
		return err
	}

	s.advanceCache(e, seq+1)
	return nil
}

// acquire returns the account's entry with its critical-section lock held.
// The entry is re-validated against the registry after locking: the reaper
// may have removed it between lookup and lock, in which case a fresh entry is
// taken so two goroutines never hold critical sections for the same key.
func (s *Sequencer) acquire(key Key) *entry {
	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			e = &entry{}
			s.entries[key] = e
			if s.metrics != nil {
				s.metrics.SetTrackedKeys(len(s.entries))
			}
		}
		e.lastAccess = s.now()
		s.mu.Unlock()

		e.lock.Lock()

		s.mu.Lock()
		current := s.entries[key] == e
		s.mu.Unlock()
		if current {
			return e
		}
		e.lock.Unlock()
	}
}

// sequenceLocked returns the cached sequence value if fresh, otherwise
// fetches from the chain and repopulates the cache. Caller must hold e.lock.
func (s *Sequencer) sequenceLocked(ctx context.Context, key Key, e *entry) (uint64, error) {
	now := s.now()

	s.mu.Lock()
	if e.cached && now.Sub(e.updatedAt) < s.cacheTTL {
		value := e.value
		s.mu.Unlock()
		return value, nil
	}
	s.mu.Unlock()

	value, err := s.fetcher.FetchSequence(ctx, key)
	if err != nil {
		s.dropCache(e)
		return 0, &SequenceFetchError{Key: key, Err: err}
	}

	s.mu.Lock()
	e.cached = true
	e.value = value
	e.updatedAt = s.now()
	s.mu.Unlock()

	s.log.WithField("account", string(key)).Debugf("fetched sequence %d", value)
	return value, nil
}

func (s *Sequencer) advanceCache(e *entry, next uint64) {
	s.mu.Lock()
	e.cached = true
	e.value = next
	e.updatedAt = s.now()
	s.mu.Unlock()
}

func (s *Sequencer) dropCache(e *entry) {
	s.mu.Lock()
	e.cached = false
	s.mu.Unlock()
}

// InvalidateCache drops the cached sequence value for an account without
// touching its lock. Callable while the lock is held by another goroutine.
func (s *Sequencer) InvalidateCache(address, network string) error {
	key, err := Normalize(address, network)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.cached = false
	}
	s.mu.Unlock()
	return nil
}

// Cleanup removes entries idle longer than the lock TTL. Held locks are
// skipped; an entry's lock, cache cell and access record are removed as one
// unit. Returns the number of entries removed.
func (s *Sequencer) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.lastAccess) <= s.lockTTL {
			continue
		}
		if !e.lock.TryLock() {
			continue
		}
		delete(s.entries, key)
		e.lock.Unlock()
		removed++
	}
	if removed > 0 && s.metrics != nil {
		s.metrics.SetTrackedKeys(len(s.entries))
	}
	return removed
}

// Tracked returns the number of account keys currently tracked.
func (s *Sequencer) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
