package bundler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tempwallets/txrelay/internal/logging"
	"github.com/tempwallets/txrelay/internal/rpc"
)

// Bundler JSON-RPC method names.
const (
	MethodSendUserOperation        = "eth_sendUserOperation"
	MethodEstimateUserOperationGas = "eth_estimateUserOperationGas"
	MethodGetUserOperationReceipt  = "eth_getUserOperationReceipt"
	MethodGetUserOperationByHash   = "eth_getUserOperationByHash"
	MethodSupportedEntryPoints     = "eth_supportedEntryPoints"
)

// GasEstimate is the bundler's gas estimation for a UserOperation.
type GasEstimate struct {
	PreVerificationGas   Quantity `json:"preVerificationGas"`
	VerificationGasLimit Quantity `json:"verificationGasLimit"`
	CallGasLimit         Quantity `json:"callGasLimit"`
}

// Receipt is the bundler's execution receipt for a UserOperation.
type Receipt struct {
	UserOpHash    string   `json:"userOpHash"`
	EntryPoint    string   `json:"entryPoint"`
	Sender        string   `json:"sender"`
	Nonce         Quantity `json:"nonce"`
	Success       bool     `json:"success"`
	ActualGasCost Quantity `json:"actualGasCost"`
	ActualGasUsed Quantity `json:"actualGasUsed"`
	Reason        string   `json:"reason,omitempty"`
	Receipt       struct {
		TransactionHash string   `json:"transactionHash"`
		BlockHash       string   `json:"blockHash"`
		BlockNumber     Quantity `json:"blockNumber"`
	} `json:"receipt"`
}

// HashedOp is a UserOperation looked up by hash, with inclusion info.
type HashedOp struct {
	UserOperation   UserOperation `json:"userOperation"`
	EntryPoint      string        `json:"entryPoint"`
	TransactionHash string        `json:"transactionHash"`
	BlockHash       string        `json:"blockHash"`
	BlockNumber     Quantity      `json:"blockNumber"`
}

// Client speaks the ERC-4337 bundler RPC surface through the resilient
// multi-provider client.
type Client struct {
	rpc        *rpc.Client
	chainID    string
	entryPoint string
	log        *logging.Logger
}

// NewClient creates a bundler client bound to one chain and entry point.
func NewClient(rpcClient *rpc.Client, chainID, entryPoint string, log *logging.Logger) (*Client, error) {
	if rpcClient == nil {
		return nil, fmt.Errorf("rpc client required")
	}
	if chainID == "" {
		return nil, fmt.Errorf("chain id required")
	}
	if entryPoint == "" {
		return nil, fmt.Errorf("entry point required")
	}
	if log == nil {
		log = logging.NewDefault("bundler")
	}
	return &Client{rpc: rpcClient, chainID: chainID, entryPoint: entryPoint, log: log}, nil
}

// EntryPoint returns the configured entry point address.
func (c *Client) EntryPoint() string { return c.entryPoint }

// SendUserOperation relays a signed UserOperation and returns its userOpHash.
func (c *Client) SendUserOperation(ctx context.Context, op *UserOperation) (string, error) {
	result, err := c.rpc.Call(ctx, c.chainID, MethodSendUserOperation, []interface{}{op, c.entryPoint})
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", fmt.Errorf("decode userOpHash: %w", err)
	}
	return hash, nil
}

// EstimateUserOperationGas asks the bundler for gas limits for the operation.
func (c *Client) EstimateUserOperationGas(ctx context.Context, op *UserOperation) (*GasEstimate, error) {
	result, err := c.rpc.Call(ctx, c.chainID, MethodEstimateUserOperationGas, []interface{}{op, c.entryPoint})
	if err != nil {
		return nil, err
	}
	var est GasEstimate
	if err := json.Unmarshal(result, &est); err != nil {
		return nil, fmt.Errorf("decode gas estimate: %w", err)
	}
	return &est, nil
}

// GetUserOperationReceipt fetches the receipt for a userOpHash. A not-yet
// -included operation yields (nil, nil) rather than an error.
func (c *Client) GetUserOperationReceipt(ctx context.Context, userOpHash string) (*Receipt, error) {
	result, err := c.rpc.CallOptional(ctx, c.chainID, MethodGetUserOperationReceipt, []interface{}{userOpHash})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &receipt, nil
}

// GetUserOperationByHash looks up a relayed operation. Returns (nil, nil)
// when the bundler does not know the hash yet.
func (c *Client) GetUserOperationByHash(ctx context.Context, userOpHash string) (*HashedOp, error) {
	result, err := c.rpc.CallOptional(ctx, c.chainID, MethodGetUserOperationByHash, []interface{}{userOpHash})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	var op HashedOp
	if err := json.Unmarshal(result, &op); err != nil {
		return nil, fmt.Errorf("decode user operation: %w", err)
	}
	return &op, nil
}

// SupportedEntryPoints returns the entry point contracts the bundler serves.
func (c *Client) SupportedEntryPoints(ctx context.Context) ([]string, error) {
	result, err := c.rpc.Call(ctx, c.chainID, MethodSupportedEntryPoints, nil)
	if err != nil {
		return nil, err
	}
	var entryPoints []string
	if err := json.Unmarshal(result, &entryPoints); err != nil {
		return nil, fmt.Errorf("decode entry points: %w", err)
	}
	return entryPoints, nil
}
