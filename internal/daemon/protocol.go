package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/Aman-CERP/amanuensis/internal/index"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing     = "ping"
	MethodStatus   = "status"
	MethodDispatch = "dispatch"
	MethodStats    = "stats"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	// ErrCodeApplyFailed means the batch reached the daemon but was not
	// (fully) applied.
	ErrCodeApplyFailed = -32001
	// ErrCodeStatsFailed means index statistics could not be read.
	ErrCodeStatsFailed = -32002
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the structured error code of a failed call.
type ErrorData struct {
	ErrorCode  string `json:"error_code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// DispatchParams are the parameters for the dispatch method.
type DispatchParams struct {
	Batch *ops.Batch `json:"batch"`
}

// Validate checks that required fields are present.
func (p *DispatchParams) Validate() error {
	if p.Batch == nil {
		return fmt.Errorf("batch is required")
	}
	if p.Batch.IndexName() == "" {
		return fmt.Errorf("batch index is required")
	}
	return nil
}

// DispatchResult acknowledges an applied batch.
type DispatchResult struct {
	Index      string `json:"index"`
	Operations int    `json:"operations"`
}

// StatsParams are the parameters for the stats method.
type StatsParams struct {
	Index string `json:"index"`
}

// Validate checks that required fields are present.
func (p *StatsParams) Validate() error {
	if p.Index == "" {
		return fmt.Errorf("index is required")
	}
	return nil
}

// StatsResult is the statistics of one index.
type StatsResult = index.IndexStats

// StatusResult contains daemon status information.
type StatusResult struct {
	Running     bool     `json:"running"`
	PID         int      `json:"pid"`
	Uptime      string   `json:"uptime"`
	DataDir     string   `json:"data_dir"`
	OpenIndexes []string `json:"open_indexes"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}

// decodeInto re-decodes a generically decoded value into target.
func decodeInto(v any, target any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}
