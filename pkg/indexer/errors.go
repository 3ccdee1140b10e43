package indexer

import (
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
)

var (
	// ErrIllegalBatchState matches every batch protocol violation.
	ErrIllegalBatchState = amerrors.New(amerrors.ErrCodeIllegalBatchState, "illegal batch state", nil)

	// ErrDispatchFailed matches every *DispatchError.
	ErrDispatchFailed = amerrors.New(amerrors.ErrCodeDispatchFailed, "dispatch failed", nil)

	// ErrNilDispatcher is returned by New when no dispatcher is configured.
	ErrNilDispatcher = errors.New("dispatcher is required")
)

// illegalState reports a protocol violation by the caller.
func illegalState(indexName, msg string) error {
	return amerrors.New(amerrors.ErrCodeIllegalBatchState, msg, nil).
		WithDetail("index", indexName).
		WithSuggestion("pair every StartBatch with exactly one EndBatch or CancelBatch")
}

// DispatchError reports that the dispatcher did not accept a batch.
type DispatchError struct {
	// IndexName is the index the batch targeted.
	IndexName string
	// Operations is the number of operations in the rejected batch.
	Operations int
	// Err is the error returned by the dispatcher.
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("[%s] dispatch of %d operation(s) to index %q failed: %v",
		amerrors.ErrCodeDispatchFailed, e.Operations, e.IndexName, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDispatchFailed) match.
func (e *DispatchError) Is(target error) bool {
	t, ok := target.(*amerrors.IndexerError)
	return ok && t.Code == amerrors.ErrCodeDispatchFailed
}
