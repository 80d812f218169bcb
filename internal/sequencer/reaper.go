package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/tempwallets/txrelay/internal/logging"
	"github.com/tempwallets/txrelay/internal/system"
)

var _ system.Service = (*Reaper)(nil)

// DefaultReapInterval is how often idle account entries are scanned.
const DefaultReapInterval = time.Hour

// Reaper periodically evicts idle account entries from the sequencer so the
// lock and cache registries do not grow without bound.
type Reaper struct {
	sequencer *Sequencer
	log       *logging.Logger
	interval  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewReaper creates a lifecycle-managed reaper for the sequencer. A
// non-positive interval falls back to DefaultReapInterval.
func NewReaper(s *Sequencer, interval time.Duration, log *logging.Logger) *Reaper {
	if log == nil {
		log = logging.NewDefault("sequencer-reaper")
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{sequencer: s, log: log, interval: interval}
}

func (r *Reaper) Name() string { return "sequencer-reaper" }

func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick()
			}
		}
	}()

	r.log.Info("sequencer reaper started")
	return nil
}

func (r *Reaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("sequencer reaper stopped")
	return nil
}

func (r *Reaper) tick() {
	removed := r.sequencer.Cleanup(time.Now())
	if removed > 0 {
		r.log.WithField("removed", removed).Info("evicted idle account entries")
	}
}
