package sequencer

import (
	"context"
	"testing"
	"time"
)

func TestReaperEvictsIdleEntries(t *testing.T) {
	// Clock pinned in the past so entries look idle to the reaper's
	// real-time cleanup immediately.
	past := time.Now().Add(-2 * time.Hour)
	fetcher := &countingFetcher{values: []uint64{1}}
	s := New(fetcher, testLogger(), WithLockTTL(time.Hour), WithClock(func() time.Time { return past }))

	if err := s.WithLock(context.Background(), "0xaaa", "aptos", func(ctx context.Context, seq uint64) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if s.Tracked() != 1 {
		t.Fatalf("expected 1 tracked entry, got %d", s.Tracked())
	}

	r := NewReaper(s, 10*time.Millisecond, testLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start reaper: %v", err)
	}
	defer func() {
		if err := r.Stop(context.Background()); err != nil {
			t.Errorf("stop reaper: %v", err)
		}
	}()

	deadline := time.After(2 * time.Second)
	for s.Tracked() != 0 {
		select {
		case <-deadline:
			t.Fatal("reaper did not evict idle entry")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestReaperStartStopIdempotent(t *testing.T) {
	s := New(&countingFetcher{values: []uint64{1}}, testLogger())
	r := NewReaper(s, time.Hour, testLogger())

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
