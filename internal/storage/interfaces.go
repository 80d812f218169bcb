// Package storage defines persistence interfaces for relay bookkeeping.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// SubmissionRecord tracks one transaction submission through its lifecycle.
type SubmissionRecord struct {
	ID         string    `json:"id"`
	AccountKey string    `json:"account_key"`
	Network    string    `json:"network"`
	Status     string    `json:"status"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Sequence   uint64    `json:"sequence"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SubmissionStore persists submission records.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, rec SubmissionRecord) (SubmissionRecord, error)
	UpdateSubmission(ctx context.Context, rec SubmissionRecord) (SubmissionRecord, error)
	GetSubmission(ctx context.Context, id string) (SubmissionRecord, error)
	ListSubmissionsByAccount(ctx context.Context, accountKey string, limit int) ([]SubmissionRecord, error)
}
