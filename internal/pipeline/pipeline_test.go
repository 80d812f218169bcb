package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tempwallets/txrelay/internal/logging"
	"github.com/tempwallets/txrelay/internal/sequencer"
	"github.com/tempwallets/txrelay/internal/storage/memory"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Component: "test"})
}

type stubSigner struct {
	err    error
	signed [][]byte
}

func (s *stubSigner) Sign(ctx context.Context, payload []byte, seq uint64) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := []byte(fmt.Sprintf("%s@%d", payload, seq))
	s.signed = append(s.signed, out)
	return out, nil
}

type stubBroadcaster struct {
	mu        sync.Mutex
	submitErr error
	receipts  int
	statuses  []Status
	polls     int
}

func (b *stubBroadcaster) Submit(ctx context.Context, signed []byte) (Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return Receipt{}, b.submitErr
	}
	b.receipts++
	return Receipt{ID: fmt.Sprintf("0xreceipt%d", b.receipts)}, nil
}

func (b *stubBroadcaster) PollStatus(ctx context.Context, receiptID string) (Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if len(b.statuses) == 0 {
		return StatusPending, nil
	}
	st := b.statuses[0]
	if len(b.statuses) > 1 {
		b.statuses = b.statuses[1:]
	}
	return st, nil
}

type testPipeline struct {
	*Pipeline
	store       *memory.Store
	broadcaster *stubBroadcaster
	fetchCalls  *int
}

func newTestPipeline(t *testing.T, mutate func(*Config)) *testPipeline {
	t.Helper()
	fetchCalls := 0
	fetcher := sequencer.SequenceFetcherFunc(func(ctx context.Context, key sequencer.Key) (uint64, error) {
		fetchCalls++
		return 5, nil
	})
	store := memory.New()
	broadcaster := &stubBroadcaster{}
	cfg := Config{
		Sequencer:    sequencer.New(fetcher, testLogger()),
		Signer:       &stubSigner{},
		Broadcaster:  broadcaster,
		Store:        store,
		Logger:       testLogger(),
		PollInterval: 10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return &testPipeline{Pipeline: p, store: store, broadcaster: broadcaster, fetchCalls: &fetchCalls}
}

func TestSubmitSuccess(t *testing.T) {
	tp := newTestPipeline(t, nil)

	result, err := tp.Submit(context.Background(), Request{
		Address: "0xabc", Network: "aptos", Payload: []byte("tx"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Sequence != 5 {
		t.Errorf("sequence %d, want 5", result.Sequence)
	}
	if result.Status != StatusSubmitted {
		t.Errorf("status %s, want submitted", result.Status)
	}
	if result.Receipt.ID == "" {
		t.Error("receipt id missing")
	}

	rec, err := tp.store.GetSubmission(context.Background(), result.SubmissionID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != string(StatusSubmitted) {
		t.Errorf("record status %s", rec.Status)
	}
	if rec.TxHash != result.Receipt.ID {
		t.Errorf("record tx hash %q should fall back to the receipt id", rec.TxHash)
	}
	if rec.Sequence != 5 {
		t.Errorf("record sequence %d", rec.Sequence)
	}
}

func TestSubmitAdvancesSequence(t *testing.T) {
	tp := newTestPipeline(t, nil)
	ctx := context.Background()

	for want := uint64(5); want < 8; want++ {
		result, err := tp.Submit(ctx, Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")})
		if err != nil {
			t.Fatal(err)
		}
		if result.Sequence != want {
			t.Errorf("sequence %d, want %d", result.Sequence, want)
		}
	}
	if *tp.fetchCalls != 1 {
		t.Errorf("expected one chain fetch, got %d", *tp.fetchCalls)
	}
}

func TestSubmitSignFailure(t *testing.T) {
	signErr := errors.New("no key")
	tp := newTestPipeline(t, func(cfg *Config) {
		cfg.Signer = &stubSigner{err: signErr}
	})

	_, err := tp.Submit(context.Background(), Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")})
	if !errors.Is(err, signErr) {
		t.Fatalf("expected sign error, got %v", err)
	}

	recs, err := tp.store.ListSubmissionsByAccount(context.Background(), "aptos:0x"+pad("abc"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Status != string(StatusFailed) {
		t.Errorf("expected one failed record, got %+v", recs)
	}
}

func TestSubmitBroadcastFailureDropsCache(t *testing.T) {
	tp := newTestPipeline(t, nil)
	ctx := context.Background()

	if _, err := tp.Submit(ctx, Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")}); err != nil {
		t.Fatal(err)
	}

	tp.broadcaster.mu.Lock()
	tp.broadcaster.submitErr = errors.New("connection refused")
	tp.broadcaster.mu.Unlock()
	if _, err := tp.Submit(ctx, Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")}); err == nil {
		t.Fatal("expected broadcast failure")
	}

	tp.broadcaster.mu.Lock()
	tp.broadcaster.submitErr = nil
	tp.broadcaster.mu.Unlock()
	result, err := tp.Submit(ctx, Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")})
	if err != nil {
		t.Fatal(err)
	}
	// The failed broadcast invalidated the cache, so the retry re-reads
	// the chain value rather than advancing past the unconfirmed gap.
	if result.Sequence != 5 {
		t.Errorf("sequence %d, want 5 from fresh chain read", result.Sequence)
	}
	if *tp.fetchCalls != 2 {
		t.Errorf("expected refetch after failure, got %d fetches", *tp.fetchCalls)
	}
}

func TestSubmitInvalidAccount(t *testing.T) {
	tp := newTestPipeline(t, nil)
	_, err := tp.Submit(context.Background(), Request{Address: "0xzz", Network: "aptos", Payload: []byte("tx")})
	var invalidErr *sequencer.InvalidAccountError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidAccountError, got %v", err)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	now := time.Now()
	tp := newTestPipeline(t, func(cfg *Config) {
		cfg.Limiter = NewSubmissionLimiter(&RateLimitConfig{
			GlobalTPS: 100, PerAccountTPS: 1, BurstMultiplier: 1,
		}, func() time.Time { return now })
	})

	ctx := context.Background()
	if _, err := tp.Submit(ctx, Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")}); err != nil {
		t.Fatal(err)
	}
	_, err := tp.Submit(ctx, Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")})
	var limitedErr *RateLimitedError
	if !errors.As(err, &limitedErr) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
}

func TestWaitForConfirmation(t *testing.T) {
	tp := newTestPipeline(t, nil)
	tp.broadcaster.statuses = []Status{StatusPending, StatusPending, StatusInBlock}

	ctx := context.Background()
	result, err := tp.Submit(ctx, Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")})
	if err != nil {
		t.Fatal(err)
	}

	status, err := tp.WaitForConfirmation(ctx, result, 2*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status != StatusInBlock {
		t.Errorf("status %s, want in_block", status)
	}

	rec, err := tp.store.GetSubmission(ctx, result.SubmissionID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != string(StatusInBlock) {
		t.Errorf("record status %s", rec.Status)
	}
}

func TestWaitForConfirmationTimeout(t *testing.T) {
	tp := newTestPipeline(t, nil) // broadcaster reports pending forever

	ctx := context.Background()
	result, err := tp.Submit(ctx, Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")})
	if err != nil {
		t.Fatal(err)
	}

	_, err = tp.WaitForConfirmation(ctx, result, 60*time.Millisecond)
	var timeoutErr *ConfirmationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected ConfirmationTimeoutError, got %v", err)
	}
	if timeoutErr.ReceiptID != result.Receipt.ID {
		t.Errorf("timeout error names %q, want %q", timeoutErr.ReceiptID, result.Receipt.ID)
	}
}

func TestWaitForConfirmationParentCancelled(t *testing.T) {
	tp := newTestPipeline(t, nil)

	result, err := tp.Submit(context.Background(), Request{Address: "0xabc", Network: "aptos", Payload: []byte("tx")})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = tp.WaitForConfirmation(ctx, result, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSubmitAndWait(t *testing.T) {
	tp := newTestPipeline(t, nil)
	tp.broadcaster.statuses = []Status{StatusInBlock}

	_, status, err := tp.SubmitAndWait(context.Background(), Request{
		Address: "0xabc", Network: "aptos", Payload: []byte("tx"),
	}, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusInBlock {
		t.Errorf("status %s", status)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusInBlock, StatusFinalized, StatusFailed, StatusDropped}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
	for _, st := range []Status{StatusConstructed, StatusSigned, StatusSubmitted, StatusPending} {
		if st.Terminal() {
			t.Errorf("%s should not be terminal", st)
		}
	}
}

// pad left-pads a hex fragment to the canonical 64-nibble address width.
func pad(hex string) string {
	for len(hex) < 64 {
		hex = "0" + hex
	}
	return hex
}
