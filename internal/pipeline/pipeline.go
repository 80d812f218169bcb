// Package pipeline carries a transaction through construct, sign, broadcast
// and confirm, with per-account sequencing and submission bookkeeping.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tempwallets/txrelay/internal/logging"
	"github.com/tempwallets/txrelay/internal/metrics"
	"github.com/tempwallets/txrelay/internal/sequencer"
	"github.com/tempwallets/txrelay/internal/storage"
)

// Status is a transaction submission lifecycle state.
type Status string

const (
	StatusConstructed Status = "constructed"
	StatusSigned      Status = "signed"
	StatusSubmitted   Status = "submitted"
	StatusPending     Status = "pending"
	StatusInBlock     Status = "in_block"
	StatusFinalized   Status = "finalized"
	StatusFailed      Status = "failed"
	StatusDropped     Status = "dropped"
)

// Terminal reports whether the status ends the confirmation wait.
func (s Status) Terminal() bool {
	switch s {
	case StatusInBlock, StatusFinalized, StatusFailed, StatusDropped:
		return true
	}
	return false
}

// DefaultPollInterval is the interval between confirmation status polls.
const DefaultPollInterval = 2 * time.Second

// Signer binds a sequence value into a payload and signs it.
type Signer interface {
	Sign(ctx context.Context, payload []byte, sequence uint64) ([]byte, error)
}

// Receipt identifies a broadcast submission for later status polling.
type Receipt struct {
	ID     string
	TxHash string
}

// Broadcaster relays a signed payload to the chain and reports its status.
// PollStatus returns StatusPending when the submission is not yet visible.
type Broadcaster interface {
	Submit(ctx context.Context, signed []byte) (Receipt, error)
	PollStatus(ctx context.Context, receiptID string) (Status, error)
}

// Request is an opaque submission payload for an account on a network.
type Request struct {
	Address string
	Network string
	Payload []byte
}

// Result reports a completed broadcast.
type Result struct {
	SubmissionID string
	Receipt      Receipt
	Sequence     uint64
	Status       Status
}

// ConfirmationTimeoutError reports that polling exceeded the caller's
// timeout. The transaction may still confirm later; the caller must re-poll
// or treat the outcome as indeterminate.
type ConfirmationTimeoutError struct {
	ReceiptID string
	Timeout   time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("confirmation of %s not observed within %s", e.ReceiptID, e.Timeout)
}

// RateLimitedError reports a submission rejected by the limiter.
type RateLimitedError struct {
	AccountKey string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("submission rate limit exceeded for %s", e.AccountKey)
}

// Pipeline composes the sequencer, signer and broadcaster.
type Pipeline struct {
	sequencer    *sequencer.Sequencer
	signer       Signer
	broadcaster  Broadcaster
	store        storage.SubmissionStore
	limiter      *SubmissionLimiter
	log          *logging.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
}

// Config configures a Pipeline.
type Config struct {
	Sequencer   *sequencer.Sequencer
	Signer      Signer
	Broadcaster Broadcaster
	Store       storage.SubmissionStore
	Limiter     *SubmissionLimiter
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	// PollInterval between confirmation polls. Zero means 2 seconds.
	PollInterval time.Duration
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Sequencer == nil {
		return nil, fmt.Errorf("sequencer required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer required")
	}
	if cfg.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefault("pipeline")
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewSubmissionLimiter(nil, nil)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Pipeline{
		sequencer:    cfg.Sequencer,
		signer:       cfg.Signer,
		broadcaster:  cfg.Broadcaster,
		store:        cfg.Store,
		limiter:      cfg.Limiter,
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		pollInterval: cfg.PollInterval,
	}, nil
}

// Submit signs and broadcasts the request under the account's critical
// section: the sequence value is bound into the payload by signing, so nonce
// assignment and signing happen inside the same lock. On any failure the
// sequencer drops its cache for the account and the error propagates.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Result, error) {
	key, err := sequencer.Normalize(req.Address, req.Network)
	if err != nil {
		return Result{}, err
	}

	if !p.limiter.Allow(string(key)) {
		return Result{}, &RateLimitedError{AccountKey: string(key)}
	}

	rec := p.createRecord(ctx, key, req.Network)

	var result Result
	err = p.sequencer.WithLock(ctx, req.Address, req.Network, func(ctx context.Context, seq uint64) error {
		rec.Sequence = seq
		signed, err := p.signer.Sign(ctx, req.Payload, seq)
		if err != nil {
			return fmt.Errorf("sign: %w", err)
		}
		p.updateRecord(ctx, &rec, StatusSigned, "", "")

		receipt, err := p.broadcaster.Submit(ctx, signed)
		if err != nil {
			return fmt.Errorf("broadcast: %w", err)
		}
		if receipt.TxHash == "" {
			receipt.TxHash = receipt.ID
		}
		p.updateRecord(ctx, &rec, StatusSubmitted, receipt.TxHash, "")

		result = Result{
			SubmissionID: rec.ID,
			Receipt:      receipt,
			Sequence:     seq,
			Status:       StatusSubmitted,
		}
		return nil
	})
	if err != nil {
		p.updateRecord(ctx, &rec, StatusFailed, "", err.Error())
		p.recordTerminal(StatusFailed)
		return Result{}, err
	}

	p.log.WithFields(map[string]interface{}{
		"account":    string(key),
		"sequence":   result.Sequence,
		"submission": rec.ID,
	}).Info("transaction broadcast")
	return result, nil
}

// WaitForConfirmation polls the broadcaster at a fixed interval until a
// terminal status is observed or the timeout elapses. A timeout yields
// ConfirmationTimeoutError; the submission itself is never re-broadcast.
func (p *Pipeline) WaitForConfirmation(ctx context.Context, result Result, timeout time.Duration) (Status, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	last := StatusPending
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, &ConfirmationTimeoutError{ReceiptID: result.Receipt.ID, Timeout: timeout}
		case <-ticker.C:
			status, err := p.broadcaster.PollStatus(waitCtx, result.Receipt.ID)
			if err != nil {
				p.log.WithError(err).WithField("receipt", result.Receipt.ID).Warn("status poll failed")
				continue
			}
			if status == "" {
				status = StatusPending
			}
			if status != last {
				rec := storage.SubmissionRecord{ID: result.SubmissionID, TxHash: result.Receipt.TxHash}
				p.updateRecord(ctx, &rec, status, result.Receipt.TxHash, "")
				last = status
			}
			if status.Terminal() {
				p.recordTerminal(status)
				if p.metrics != nil {
					p.metrics.ObserveConfirmation(time.Since(start))
				}
				return status, nil
			}
		}
	}
}

// SubmitAndWait broadcasts the request and waits for a terminal status.
func (p *Pipeline) SubmitAndWait(ctx context.Context, req Request, timeout time.Duration) (Result, Status, error) {
	result, err := p.Submit(ctx, req)
	if err != nil {
		return Result{}, StatusFailed, err
	}
	status, err := p.WaitForConfirmation(ctx, result, timeout)
	return result, status, err
}

func (p *Pipeline) createRecord(ctx context.Context, key sequencer.Key, network string) storage.SubmissionRecord {
	rec := storage.SubmissionRecord{
		AccountKey: string(key),
		Network:    network,
		Status:     string(StatusConstructed),
	}
	if p.store == nil {
		return rec
	}
	created, err := p.store.CreateSubmission(ctx, rec)
	if err != nil {
		p.log.WithError(err).Warn("create submission record")
		return rec
	}
	return created
}

func (p *Pipeline) updateRecord(ctx context.Context, rec *storage.SubmissionRecord, status Status, txHash, errMsg string) {
	rec.Status = string(status)
	if txHash != "" {
		rec.TxHash = txHash
	}
	if errMsg != "" {
		rec.Error = errMsg
	}
	if p.store == nil || rec.ID == "" {
		return
	}
	updated, err := p.store.UpdateSubmission(ctx, *rec)
	if err != nil {
		p.log.WithError(err).WithField("submission", rec.ID).Warn("update submission record")
		return
	}
	*rec = updated
}

func (p *Pipeline) recordTerminal(status Status) {
	if p.metrics != nil {
		p.metrics.RecordSubmission(string(status))
	}
}
