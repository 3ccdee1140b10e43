package indexer

import (
	"context"
	"sync"

	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// recordingDispatcher records every batch it receives.
type recordingDispatcher struct {
	mu      sync.Mutex
	batches []*ops.Batch
	err     error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, batch *ops.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return r.err
}

func (r *recordingDispatcher) received() []*ops.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ops.Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

func doc(id string) ops.Document {
	return ops.Document{ID: id, Fields: map[string]any{"title": "doc " + id}}
}
