package indexer

import (
	"context"

	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// Dispatcher hands a complete batch to the authoritative indexing point.
//
// Implementations must be safe for concurrent use: every session of every
// writer sharing the dispatcher calls it directly. Dispatch blocks until the
// batch is accepted or rejected. Any retry or timeout policy belongs to the
// implementation or to ctx.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch *ops.Batch) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, batch *ops.Batch) error

// Dispatch calls f(ctx, batch).
func (f DispatcherFunc) Dispatch(ctx context.Context, batch *ops.Batch) error {
	return f(ctx, batch)
}
