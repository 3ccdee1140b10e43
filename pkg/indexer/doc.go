// Package indexer is the client-side front-end for writing to a shared index.
//
// Many goroutines share one [IndexWriter]. Each caller obtains its own
// [Session], which holds that caller's batch state. A session either sends
// every mutation straight to the [Dispatcher] as a single-operation batch, or,
// between StartBatch and EndBatch, accumulates mutations and hands them over
// as one ordered unit.
//
// # Usage
//
//	w, err := indexer.New("products", indexer.WithDispatcher(client))
//	if err != nil {
//	    return err
//	}
//
//	s := w.NewSession()
//	if err := s.StartBatch(); err != nil {
//	    return err
//	}
//	_ = s.AddDocument(ctx, ops.Document{ID: "p1", Fields: fields})
//	_ = s.DeleteByTerms(ctx, ops.Term{Field: "sku", Text: "old"})
//	if err := s.EndBatch(ctx); err != nil {
//	    return err // *DispatchError; the session is idle again
//	}
//
// # Errors
//
// Protocol misuse (StartBatch while batching, EndBatch or CancelBatch while
// idle) returns an error matching [ErrIllegalBatchState]. Failures reported
// by the dispatcher are returned as [*DispatchError]. Neither is retried here.
//
// # Thread Safety
//
// IndexWriter is safe for concurrent use. A Session is not: it belongs to the
// goroutine that created it, and sessions never see each other's operations.
package indexer
