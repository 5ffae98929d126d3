package chain

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

	"github.com/codeGROOVE-dev/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Options tune a Client. Zero values fall back to the defaults below.
type Options struct {
	Timeout           time.Duration
	Attempts          int
	Delay             time.Duration
	MaxDelay          time.Duration
	RequestsPerSecond float64
	Burst             int
	ChainID           string // hex, used when signing
	AddressPrefix     string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Delay <= 0 {
		o.Delay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 5 * time.Second
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 20
	}
	if o.Burst <= 0 {
		o.Burst = int(o.RequestsPerSecond)
		if o.Burst < 1 {
			o.Burst = 1
		}
	}
	if o.ChainID == "" {
		o.ChainID = DefaultChainID
	}
	if o.AddressPrefix == "" {
		o.AddressPrefix = DefaultAddressPrefix
	}
	return o
}

// Client talks JSON-RPC 2.0 to a single Blurt node.
type Client struct {
	endpoint string
	opts     Options
	http     *http.Client
	limiter  *rate.Limiter
	logger   *logrus.Logger
	nextID   atomic.Int64
}

// NewClient creates a client for endpoint
func NewClient(endpoint string, opts Options, logger *logrus.Logger) *Client {
	opts = opts.withDefaults()
	return &Client{
		endpoint: endpoint,
		opts:     opts,
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		logger:   logger,
	}
}

// Endpoint returns the node URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     int64           `json:"id"`
}

// RPCError is an error reported by the node itself. It is never retried.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// httpStatusError marks a non-200 answer from the node
type httpStatusError struct {
	Status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Status)
}

func retryable(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Call invokes method with params and decodes the result into result,
// retrying transport failures.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	return c.call(ctx, method, params, result, uint(c.opts.Attempts))
}

// CallOnce invokes method without retries. Broadcasts use it so a
// transaction is never submitted twice by the client.
func (c *Client) CallOnce(ctx context.Context, method string, params, result any) error {
	return c.call(ctx, method, params, result, 1)
}

func (c *Client) call(ctx context.Context, method string, params, result any, attempts uint) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	var lastErr error
	err = retry.Do(
		func() error {
			lastErr = c.roundTrip(ctx, method, body, result)
			return lastErr
		},
		retry.Attempts(attempts),
		retry.Delay(c.opts.Delay),
		retry.MaxDelay(c.opts.MaxDelay),
		retry.MaxJitter(c.opts.Delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WithFields(logrus.Fields{
				"endpoint": c.endpoint,
				"method":   method,
				"attempt":  n,
			}).WithError(err).Warn("Retrying RPC call")
		}),
		retry.RetryIf(retryable),
	)
	if err == nil {
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}
	var rpcErr *RPCError
	if errors.As(lastErr, &rpcErr) {
		return fmt.Errorf("%s: %w", method, rpcErr)
	}
	return fmt.Errorf("%s via %s: %w", method, c.endpoint, lastErr)
}

func (c *Client) roundTrip(ctx context.Context, method string, body []byte, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("RPC call completed")

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &httpStatusError{Status: resp.StatusCode}
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return out.Error
	}
	if result == nil || len(out.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return retry.Unrecoverable(fmt.Errorf("decode result: %w", err))
	}
	return nil
}
