package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/pkg/indexer"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// Client talks to the daemon. It is also the remote indexer.Dispatcher:
// batches sent through it are applied by the daemon's coordinator.
//
// Only failures to reach the daemon are retried. Once a request has been
// written, a lost response is reported rather than resent, so a batch is
// never applied twice.
type Client struct {
	socketPath string
	timeout    time.Duration
	retry      amerrors.RetryConfig
	breaker    *amerrors.CircuitBreaker
	requestID  atomic.Uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryConfig sets the reconnect policy.
func WithRetryConfig(cfg amerrors.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithCircuitBreaker replaces the default circuit breaker.
func WithCircuitBreaker(cb *amerrors.CircuitBreaker) ClientOption {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

var _ indexer.Dispatcher = (*Client)(nil)

// NewClient creates a new daemon client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
		retry:      amerrors.DefaultRetryConfig(),
		breaker:    amerrors.NewCircuitBreaker("daemon"),
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker returns the client's circuit breaker.
func (c *Client) Breaker() *amerrors.CircuitBreaker { return c.breaker }

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, amerrors.NetworkError("failed to connect to daemon", err).
			WithDetail("socket", c.socketPath).
			WithSuggestion("Start the daemon: amanuensis daemon start")
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, MethodPing, nil)
	return err
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	resp, err := c.call(ctx, MethodStatus, nil)
	if err != nil {
		return nil, err
	}

	var status StatusResult
	if err := decodeInto(resp.Result, &status); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeRemoteFailure, "invalid status response", err)
	}
	return &status, nil
}

// Stats retrieves statistics for one index.
func (c *Client) Stats(ctx context.Context, indexName string) (*StatsResult, error) {
	params := StatsParams{Index: indexName}
	if err := params.Validate(); err != nil {
		return nil, amerrors.ValidationError("invalid params", err)
	}

	resp, err := c.call(ctx, MethodStats, params)
	if err != nil {
		return nil, err
	}

	var stats StatsResult
	if err := decodeInto(resp.Result, &stats); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeRemoteFailure, "invalid stats response", err)
	}
	return &stats, nil
}

// Dispatch sends batch to the daemon and waits until it has been applied.
func (c *Client) Dispatch(ctx context.Context, batch *ops.Batch) error {
	params := DispatchParams{Batch: batch}
	if err := params.Validate(); err != nil {
		return amerrors.ValidationError("invalid batch", err)
	}

	_, err := c.call(ctx, MethodDispatch, params)
	return err
}

// call performs one request. Connecting is retried with backoff behind the
// circuit breaker; everything after the request is written is not.
func (c *Client) call(ctx context.Context, method string, params any) (*Response, error) {
	var conn net.Conn
	err := amerrors.RetryIf(ctx, c.retry, shouldReconnect, func() error {
		return c.breaker.Execute(func() error {
			var err error
			conn, err = c.Connect()
			return err
		}, amerrors.IsRetryable)
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, amerrors.NetworkError("failed to set deadline", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := c.send(conn, req); err != nil {
		return nil, err
	}

	resp, err := c.receive(conn)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, remoteError(method, resp.Error)
	}
	return resp, nil
}

// shouldReconnect retries connection failures but not an open circuit.
func shouldReconnect(err error) bool {
	return err != amerrors.ErrCircuitOpen && amerrors.IsRetryable(err)
}

// send encodes and writes a request to the connection.
func (c *Client) send(conn net.Conn, req Request) error {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return amerrors.New(amerrors.ErrCodeRemoteFailure, "failed to send request", err).
			WithDetail("method", req.Method)
	}
	return nil
}

// receive reads and decodes a response from the connection.
func (c *Client) receive(conn net.Conn) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		code := amerrors.ErrCodeRemoteFailure
		if stderrors.Is(err, os.ErrDeadlineExceeded) {
			code = amerrors.ErrCodeNetworkTimeout
		}
		ie := amerrors.New(code, "failed to receive response", err)
		// The request may have been applied; never resend it.
		ie.Retryable = false
		return nil, ie
	}
	return &resp, nil
}

// remoteError converts a JSON-RPC error into an IndexerError.
func remoteError(method string, rpcErr *Error) error {
	ie := amerrors.New(amerrors.ErrCodeRemoteFailure, rpcErr.Message, nil).
		WithDetail("method", method).
		WithDetail("rpc_code", fmt.Sprintf("%d", rpcErr.Code))
	if rpcErr.Data != nil {
		if rpcErr.Data.ErrorCode != "" {
			ie.WithDetail("remote_code", rpcErr.Data.ErrorCode)
		}
		if rpcErr.Data.Suggestion != "" {
			ie.WithSuggestion(rpcErr.Data.Suggestion)
		}
	}
	return ie
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
