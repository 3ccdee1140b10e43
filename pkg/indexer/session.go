package indexer

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// Session is one caller's view of an IndexWriter.
//
// A session is idle until StartBatch and batching until EndBatch or
// CancelBatch. While idle, every mutation call is dispatched immediately as a
// batch of its own. While batching, mutations are only appended in memory.
//
// A Session must not be used from more than one goroutine at a time.
type Session struct {
	w     *IndexWriter
	batch *ops.Batch // nil while idle
}

// IndexName returns the identifier of the target index.
func (s *Session) IndexName() string {
	return s.w.indexName
}

// IsBatching reports whether a batch is open.
func (s *Session) IsBatching() bool {
	return s.batch != nil
}

// StartBatch opens a batch. Batches do not nest: calling StartBatch while
// batching returns ErrIllegalBatchState and leaves the open batch untouched.
func (s *Session) StartBatch() error {
	if s.IsBatching() {
		return illegalState(s.w.indexName, "already in batching mode")
	}

	s.batch = ops.NewBatch(s.w.indexName)
	s.w.logger.Debug("batch_started", slog.String("index", s.w.indexName))
	return nil
}

// EndBatch hands the open batch to the dispatcher as one unit and returns
// the session to idle. The session is idle afterwards even when the
// dispatcher fails; the failure is returned as a *DispatchError.
func (s *Session) EndBatch(ctx context.Context) error {
	if !s.IsBatching() {
		return illegalState(s.w.indexName, "not in batching mode")
	}

	batch := s.batch
	s.batch = nil

	if err := s.w.send(ctx, batch); err != nil {
		s.w.logger.Debug("batch_failed",
			slog.String("index", s.w.indexName),
			slog.Int("operations", batch.Len()),
			slog.String("error", err.Error()))
		return err
	}

	s.w.logger.Debug("batch_finished",
		slog.String("index", s.w.indexName),
		slog.Int("operations", batch.Len()))
	return nil
}

// CancelBatch discards the open batch without dispatching anything.
func (s *Session) CancelBatch() error {
	if !s.IsBatching() {
		return illegalState(s.w.indexName, "not in batching mode")
	}

	discarded := s.batch.Len()
	s.batch = nil
	s.w.logger.Debug("batch_cancelled",
		slog.String("index", s.w.indexName),
		slog.Int("discarded", discarded))
	return nil
}

// AddDocument adds one document.
func (s *Session) AddDocument(ctx context.Context, doc ops.Document) error {
	return s.dispatch(ctx, ops.Add(doc))
}

// AddDocuments adds docs in order. No documents is a no-op.
func (s *Session) AddDocuments(ctx context.Context, docs ...ops.Document) error {
	if len(docs) == 0 {
		return nil
	}
	operations := make([]ops.Operation, len(docs))
	for i, doc := range docs {
		operations[i] = ops.Add(doc)
	}
	return s.dispatch(ctx, operations...)
}

// DeleteByQueries deletes every document matching any of queries.
// No queries is a no-op.
func (s *Session) DeleteByQueries(ctx context.Context, queries ...ops.Query) error {
	if len(queries) == 0 {
		return nil
	}
	operations := make([]ops.Operation, len(queries))
	for i, q := range queries {
		operations[i] = ops.DeleteByQuery(q)
	}
	return s.dispatch(ctx, operations...)
}

// DeleteByTerms deletes every document containing any of terms.
// No terms is a no-op.
func (s *Session) DeleteByTerms(ctx context.Context, terms ...ops.Term) error {
	if len(terms) == 0 {
		return nil
	}
	operations := make([]ops.Operation, len(terms))
	for i, t := range terms {
		operations[i] = ops.DeleteByTerm(t)
	}
	return s.dispatch(ctx, operations...)
}

// dispatch appends to the open batch, or sends operations right away as a
// fresh batch when idle.
func (s *Session) dispatch(ctx context.Context, operations ...ops.Operation) error {
	if s.IsBatching() {
		s.batch.Append(operations...)
		return nil
	}
	return s.w.send(ctx, ops.NewBatch(s.w.indexName, operations...))
}
