package indexer

import (
	"context"
	"log/slog"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// IndexWriter is the shared entry point for mutations of one index.
// Its fields are read-only after New, so it needs no locking.
type IndexWriter struct {
	indexName  string
	dispatcher Dispatcher
	logger     *slog.Logger
}

// Option configures an IndexWriter.
type Option func(*IndexWriter)

// WithDispatcher sets the dispatcher batches are handed to. Required.
func WithDispatcher(d Dispatcher) Option {
	return func(w *IndexWriter) {
		w.dispatcher = d
	}
}

// WithLogger sets the logger used for batch lifecycle events.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *IndexWriter) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a writer for indexName.
//
// Returns ErrNilDispatcher if WithDispatcher is missing.
func New(indexName string, opts ...Option) (*IndexWriter, error) {
	if indexName == "" {
		return nil, amerrors.New(amerrors.ErrCodeInvalidIndexName, "index name is required", nil)
	}

	w := &IndexWriter{
		indexName: indexName,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	return w, nil
}

// IndexName returns the identifier of the target index.
func (w *IndexWriter) IndexName() string {
	return w.indexName
}

// NewSession returns an idle session bound to this writer. Give each
// goroutine its own session.
func (w *IndexWriter) NewSession() *Session {
	return &Session{w: w}
}

// send hands batch to the dispatcher, wrapping any failure.
func (w *IndexWriter) send(ctx context.Context, batch *ops.Batch) error {
	if err := w.dispatcher.Dispatch(ctx, batch); err != nil {
		return &DispatchError{
			IndexName:  w.indexName,
			Operations: batch.Len(),
			Err:        err,
		}
	}
	return nil
}
