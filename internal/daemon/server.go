package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// RequestHandler handles incoming RPC requests.
type RequestHandler interface {
	HandleDispatch(ctx context.Context, batch *ops.Batch) error
	HandleStats(ctx context.Context, indexName string) (*StatsResult, error)
	GetStatus() StatusResult
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithConnTimeout bounds the lifetime of one connection.
func WithConnTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.connTimeout = d
		}
	}
}

// WithGracePeriod bounds how long shutdown waits for open connections.
func WithGracePeriod(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.gracePeriod = d
		}
	}
}

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath  string
	listener    net.Listener
	handler     RequestHandler
	started     time.Time
	connTimeout time.Duration
	gracePeriod time.Duration

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a new server that listens on the given socket path.
func NewServer(socketPath string, opts ...ServerOption) (*Server, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("socket path cannot be empty")
	}
	s := &Server{
		socketPath:  socketPath,
		connTimeout: 30 * time.Second,
		gracePeriod: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetHandler sets the request handler for dispatch and stats.
func (s *Server) SetHandler(h RequestHandler) {
	s.handler = h
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeNetworkUnavailable, fmt.Sprintf("failed to listen on %s", s.socketPath), err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("server_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			if stderrors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// Connections finish their request even after shutdown starts.
			s.handleConnection(context.WithoutCancel(ctx), conn)
		}()
	}

	s.drain()
	return ctx.Err()
}

// drain waits up to the grace period for open connections.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.gracePeriod):
		slog.Warn("shutdown_grace_period_exceeded", slog.Duration("grace_period", s.gracePeriod))
	}
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.connTimeout)); err != nil {
		slog.Warn("set_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	resp := s.handleRequest(ctx, req)
	if err := encoder.Encode(resp); err != nil {
		slog.Warn("response_write_failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
	}
}

// handleRequest routes a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.getStatus())

	case MethodDispatch:
		return s.handleDispatch(ctx, req)

	case MethodStats:
		return s.handleStats(ctx, req)

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// handleDispatch applies a batch.
func (s *Server) handleDispatch(ctx context.Context, req Request) Response {
	if s.handler == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "no dispatch handler configured")
	}

	var params DispatchParams
	if err := decodeInto(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	if err := s.handler.HandleDispatch(ctx, params.Batch); err != nil {
		return errorResponse(req.ID, ErrCodeApplyFailed, err)
	}

	return NewSuccessResponse(req.ID, DispatchResult{
		Index:      params.Batch.IndexName(),
		Operations: params.Batch.Len(),
	})
}

// handleStats reads index statistics.
func (s *Server) handleStats(ctx context.Context, req Request) Response {
	if s.handler == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "no stats handler configured")
	}

	var params StatsParams
	if err := decodeInto(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	stats, err := s.handler.HandleStats(ctx, params.Index)
	if err != nil {
		return errorResponse(req.ID, ErrCodeStatsFailed, err)
	}
	return NewSuccessResponse(req.ID, stats)
}

// errorResponse carries the structured code of err, if any.
func errorResponse(id string, code int, err error) Response {
	resp := NewErrorResponse(id, code, err.Error())

	var ie *amerrors.IndexerError
	if stderrors.As(err, &ie) {
		resp.Error.Message = ie.Message
		resp.Error.Data = &ErrorData{ErrorCode: ie.Code, Suggestion: ie.Suggestion}
	}
	return resp
}

// getStatus returns the current server status.
func (s *Server) getStatus() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	status := StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
	}

	if s.handler != nil {
		handlerStatus := s.handler.GetStatus()
		status.DataDir = handlerStatus.DataDir
		status.OpenIndexes = handlerStatus.OpenIndexes
	}
	return status
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
