// Package rpc issues JSON-RPC calls against an ordered list of providers,
// applying per-attempt timeouts, retry with exponential backoff and circuit
// breaker gating.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tempwallets/txrelay/internal/logging"
	"github.com/tempwallets/txrelay/internal/metrics"
)

const (
	// DefaultRequestTimeout bounds a single attempt.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultMaxRetries is the total number of attempts per call.
	DefaultMaxRetries = 3
	// defaultBackoffBase is the unit for the 2^attempt backoff schedule.
	defaultBackoffBase = time.Second
)

// request is the JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// response is the JSON-RPC 2.0 response envelope.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// Client executes logical calls against a prioritized provider list, gated by
// a breaker registry. One Client serves one chain's provider set.
type Client struct {
	providers      []Provider
	creds          Credentials
	breakers       *BreakerRegistry
	httpClient     *http.Client
	log            *logging.Logger
	metrics        *metrics.Metrics
	requestTimeout time.Duration
	maxRetries     int
	backoffBase    time.Duration
	nextID         atomic.Int64
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Providers      []Provider
	Credentials    Credentials
	Breakers       *BreakerRegistry
	HTTPClient     *http.Client
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	MaxRetries     int
	// BackoffBase scales the 2^attempt retry delay. Zero means one second.
	BackoffBase time.Duration
}

// NewClient creates a resilient JSON-RPC client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider required")
	}
	if cfg.Breakers == nil {
		cfg.Breakers = NewBreakerRegistry()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefault("rpc")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	return &Client{
		providers:      sortProviders(cfg.Providers),
		creds:          cfg.Credentials,
		breakers:       cfg.Breakers,
		httpClient:     cfg.HTTPClient,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		requestTimeout: cfg.RequestTimeout,
		maxRetries:     cfg.MaxRetries,
		backoffBase:    cfg.BackoffBase,
	}, nil
}

// Breakers exposes the breaker registry for status reporting.
func (c *Client) Breakers() *BreakerRegistry { return c.breakers }

// Providers returns the configured providers in priority order.
func (c *Client) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// Call performs one logical JSON-RPC call for the chain: a provider is
// selected through the breaker registry, then tried up to MaxRetries times
// with exponential backoff. Only the final attempt's failure is recorded
// against the provider's breaker; any success clears it. A response without
// a result field is a failed attempt.
func (c *Client) Call(ctx context.Context, chainID, method string, params []interface{}) (json.RawMessage, error) {
	return c.call(ctx, chainID, method, params, false)
}

// CallOptional is Call for read-only lookups whose result may legitimately be
// absent (e.g. a receipt that does not exist yet). An empty result is a
// successful attempt returning a nil message, not a failure.
func (c *Client) CallOptional(ctx context.Context, chainID, method string, params []interface{}) (json.RawMessage, error) {
	return c.call(ctx, chainID, method, params, true)
}

func (c *Client) call(ctx context.Context, chainID, method string, params []interface{}, allowEmpty bool) (json.RawMessage, error) {
	provider, err := c.selectProvider(chainID)
	if err != nil {
		return nil, err
	}

	url, err := provider.Resolve(chainID, c.creds)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint for %s: %w", provider.Name, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		result, err := c.attempt(ctx, provider.Name, url, method, params, allowEmpty)
		if err == nil {
			c.breakers.RecordSuccess(provider.Name, chainID)
			c.recordAttempt(provider.Name, "success")
			return result, nil
		}
		lastErr = err
		c.recordAttempt(provider.Name, "failure")
		c.log.WithError(err).WithFields(map[string]interface{}{
			"provider": provider.Name,
			"method":   method,
			"attempt":  attempt,
		}).Warn("rpc attempt failed")

		if ctx.Err() != nil {
			break
		}
		if attempt < c.maxRetries {
			if err := c.backoff(ctx, attempt); err != nil {
				lastErr = err
				break
			}
		}
	}

	c.breakers.RecordFailure(provider.Name, chainID)
	return nil, &AllAttemptsFailedError{
		Provider: provider.Name,
		Method:   method,
		Attempts: c.maxRetries,
		Err:      lastErr,
	}
}

// selectProvider walks providers in ascending priority and returns the first
// whose breaker admits traffic. When every breaker is open, the highest
// priority provider is used anyway: a best-effort attempt is preferred over
// refusing outright.
func (c *Client) selectProvider(chainID string) (Provider, error) {
	if len(c.providers) == 0 {
		return Provider{}, &CircuitOpenError{ChainID: chainID}
	}
	for _, p := range c.providers {
		if c.breakers.Allow(p.Name, chainID) {
			return p, nil
		}
	}
	fallback := c.providers[0]
	c.log.WithFields(map[string]interface{}{
		"provider": fallback.Name,
		"chain_id": chainID,
	}).Warn("all provider circuits open, falling back to primary")
	return fallback, nil
}

// attempt performs a single HTTP round trip with the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, providerName, url, method string, params []interface{}, allowEmpty bool) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &RequestTimeoutError{Provider: providerName, Method: method}
		}
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		if allowEmpty {
			return nil, nil
		}
		return nil, &EmptyResultError{Method: method}
	}
	return envelope.Result, nil
}

// backoff sleeps 2^attempt units, returning early if ctx is cancelled.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.backoffBase * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) recordAttempt(provider, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordRPCAttempt(provider, outcome)
	}
}

// IsRemoteError reports whether err (anywhere in its chain) is a remote
// JSON-RPC error with the given code.
func IsRemoteError(err error, code int) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code == code
	}
	return false
}
