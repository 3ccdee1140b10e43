// Package store holds the authoritative document index and the batch
// journal. A DocumentIndex applies ops.Batch values to a bleve index; a
// Journal records every applied batch in SQLite.
package store

import (
	"time"

	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// ApplyResult summarizes one applied batch.
type ApplyResult struct {
	// Added is the number of documents indexed.
	Added int `json:"added"`
	// Deleted is the number of documents removed by delete operations.
	Deleted int `json:"deleted"`
}

// SearchHit is a single search result.
type SearchHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Entry is one journal record.
type Entry struct {
	ID             int64     `json:"id"`
	IndexName      string    `json:"index"`
	Adds           int       `json:"adds"`
	DeletesByQuery int       `json:"deletes_by_query"`
	DeletesByTerm  int       `json:"deletes_by_term"`
	Deleted        int       `json:"deleted"`
	AppliedAt      time.Time `json:"applied_at"`
	// Error is empty when the batch applied cleanly.
	Error string `json:"error,omitempty"`
}

// NewEntry builds a journal entry for batch from its apply outcome.
func NewEntry(batch *ops.Batch, result ApplyResult, applyErr error) Entry {
	counts := batch.Counts()
	e := Entry{
		IndexName:      batch.IndexName(),
		Adds:           counts[ops.KindAdd],
		DeletesByQuery: counts[ops.KindDeleteByQuery],
		DeletesByTerm:  counts[ops.KindDeleteByTerm],
		Deleted:        result.Deleted,
		AppliedAt:      time.Now().UTC(),
	}
	if applyErr != nil {
		e.Error = applyErr.Error()
	}
	return e
}

// Totals aggregates the journal for one index.
type Totals struct {
	Batches        int       `json:"batches"`
	Failed         int       `json:"failed"`
	Adds           int       `json:"adds"`
	DeletesByQuery int       `json:"deletes_by_query"`
	DeletesByTerm  int       `json:"deletes_by_term"`
	Deleted        int       `json:"deleted"`
	LastAppliedAt  time.Time `json:"last_applied_at,omitzero"`
}
