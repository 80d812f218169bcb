package bundler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tempwallets/txrelay/internal/pipeline"
	"github.com/tempwallets/txrelay/internal/rpc"
	"github.com/tempwallets/txrelay/internal/sequencer"
)

// Broadcaster adapts the bundler client to the pipeline's broadcast surface.
// The signed payload is the JSON-encoded UserOperation.
type Broadcaster struct {
	client *Client
}

var _ pipeline.Broadcaster = (*Broadcaster)(nil)

// NewBroadcaster wraps a bundler client.
func NewBroadcaster(client *Client) *Broadcaster {
	return &Broadcaster{client: client}
}

// Submit relays the signed UserOperation; the receipt ID is the userOpHash.
func (b *Broadcaster) Submit(ctx context.Context, signed []byte) (pipeline.Receipt, error) {
	var op UserOperation
	if err := json.Unmarshal(signed, &op); err != nil {
		return pipeline.Receipt{}, fmt.Errorf("decode signed user operation: %w", err)
	}
	hash, err := b.client.SendUserOperation(ctx, &op)
	if err != nil {
		return pipeline.Receipt{}, err
	}
	return pipeline.Receipt{ID: hash}, nil
}

// PollStatus maps the bundler receipt lookup onto pipeline statuses. A
// missing receipt means the operation is still pending.
func (b *Broadcaster) PollStatus(ctx context.Context, receiptID string) (pipeline.Status, error) {
	receipt, err := b.client.GetUserOperationReceipt(ctx, receiptID)
	if err != nil {
		return pipeline.StatusPending, err
	}
	if receipt == nil {
		return pipeline.StatusPending, nil
	}
	if !receipt.Success {
		return pipeline.StatusFailed, nil
	}
	return pipeline.StatusInBlock, nil
}

// NonceBinder stamps the assigned sequence into a pre-signed UserOperation.
// Key custody stays with the caller; the relay only binds the nonce inside
// the account's critical section.
type NonceBinder struct{}

var _ pipeline.Signer = NonceBinder{}

// Sign sets the operation's nonce to the assigned sequence and re-encodes.
func (NonceBinder) Sign(ctx context.Context, payload []byte, sequence uint64) ([]byte, error) {
	var op UserOperation
	if err := json.Unmarshal(payload, &op); err != nil {
		return nil, fmt.Errorf("decode user operation: %w", err)
	}
	op.Nonce = Quantity(sequence)
	bound, err := json.Marshal(&op)
	if err != nil {
		return nil, fmt.Errorf("encode user operation: %w", err)
	}
	return bound, nil
}

// NonceFetcher resolves an account's next sequence value over the resilient
// RPC client using a configurable lookup method returning a hex quantity.
type NonceFetcher struct {
	rpc     *rpc.Client
	chainID string
	method  string
}

var _ sequencer.SequenceFetcher = (*NonceFetcher)(nil)

// NewNonceFetcher creates a fetcher. An empty method defaults to
// eth_getTransactionCount against the latest block.
func NewNonceFetcher(rpcClient *rpc.Client, chainID, method string) *NonceFetcher {
	if method == "" {
		method = "eth_getTransactionCount"
	}
	return &NonceFetcher{rpc: rpcClient, chainID: chainID, method: method}
}

// FetchSequence reads the account's on-chain sequence value.
func (f *NonceFetcher) FetchSequence(ctx context.Context, key sequencer.Key) (uint64, error) {
	result, err := f.rpc.Call(ctx, f.chainID, f.method, []interface{}{key.Address(), "latest"})
	if err != nil {
		return 0, err
	}
	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return 0, fmt.Errorf("decode sequence: %w", err)
	}
	q, err := ParseQuantity(encoded)
	if err != nil {
		return 0, fmt.Errorf("parse sequence: %w", err)
	}
	return uint64(q), nil
}
