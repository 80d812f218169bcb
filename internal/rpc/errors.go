package rpc

import (
	"encoding/json"
	"fmt"
)

// RemoteError is a JSON-RPC error object reported by the remote endpoint.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// EmptyResultError reports a success envelope with no result field.
type EmptyResultError struct {
	Method string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("rpc call %s returned empty result", e.Method)
}

// RequestTimeoutError reports a single attempt exceeding the request timeout.
type RequestTimeoutError struct {
	Provider string
	Method   string
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("rpc call %s via %s timed out", e.Method, e.Provider)
}

// AllAttemptsFailedError aggregates an exhausted retry loop, carrying the
// last underlying error.
type AllAttemptsFailedError struct {
	Provider string
	Method   string
	Attempts int
	Err      error
}

func (e *AllAttemptsFailedError) Error() string {
	return fmt.Sprintf("rpc call %s via %s failed after %d attempts: %v", e.Method, e.Provider, e.Attempts, e.Err)
}

func (e *AllAttemptsFailedError) Unwrap() error { return e.Err }

// CircuitOpenError reports that no provider could be selected at all.
type CircuitOpenError struct {
	ChainID string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("no eligible rpc provider for chain %s", e.ChainID)
}
