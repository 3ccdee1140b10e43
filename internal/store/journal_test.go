package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

func newMemJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestNewEntry_CountsKinds(t *testing.T) {
	batch := ops.NewBatch("products",
		ops.Add(ops.Document{ID: "1"}),
		ops.Add(ops.Document{ID: "2"}),
		ops.DeleteByQuery(ops.Query{Text: "x"}),
		ops.DeleteByTerm(ops.Term{Field: "f", Text: "y"}),
	)

	e := NewEntry(batch, ApplyResult{Added: 2, Deleted: 4}, errors.New("boom"))

	assert.Equal(t, "products", e.IndexName)
	assert.Equal(t, 2, e.Adds)
	assert.Equal(t, 1, e.DeletesByQuery)
	assert.Equal(t, 1, e.DeletesByTerm)
	assert.Equal(t, 4, e.Deleted)
	assert.Equal(t, "boom", e.Error)
	assert.False(t, e.AppliedAt.IsZero())
}

func TestJournal_RecordAndRecent(t *testing.T) {
	// Given: three recorded batches
	j := newMemJournal(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		id, err := j.Record(ctx, Entry{IndexName: "products", Adds: i})
		require.NoError(t, err)
		assert.Equal(t, int64(i), id)
	}

	// When: fetching the two most recent
	entries, err := j.Recent(ctx, 2)

	// Then: newest first
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].Adds)
	assert.Equal(t, 2, entries[1].Adds)
	assert.False(t, entries[0].AppliedAt.IsZero())
}

func TestJournal_Recent_NonPositiveLimit(t *testing.T) {
	j := newMemJournal(t)

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournal_Totals(t *testing.T) {
	// Given: entries for two indexes, one failed
	j := newMemJournal(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := j.Record(ctx, Entry{IndexName: "products", Adds: 3, Deleted: 1, DeletesByTerm: 1, AppliedAt: at})
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{IndexName: "products", DeletesByQuery: 2, Error: "bad query", AppliedAt: at.Add(time.Minute)})
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{IndexName: "orders", Adds: 10})
	require.NoError(t, err)

	// When: totalling products
	totals, err := j.Totals(ctx, "products")

	// Then: only products entries are aggregated
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Batches)
	assert.Equal(t, 1, totals.Failed)
	assert.Equal(t, 3, totals.Adds)
	assert.Equal(t, 2, totals.DeletesByQuery)
	assert.Equal(t, 1, totals.DeletesByTerm)
	assert.Equal(t, 1, totals.Deleted)
	assert.Equal(t, at.Add(time.Minute), totals.LastAppliedAt)
}

func TestJournal_Totals_UnknownIndex(t *testing.T) {
	j := newMemJournal(t)

	totals, err := j.Totals(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)
}

func TestJournal_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	_, err = j.Record(context.Background(), Entry{IndexName: "products", Adds: 1})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	totals, err := j.Totals(context.Background(), "products")
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Batches)
}

func TestJournal_ClosedRejectsCalls(t *testing.T) {
	j, err := OpenJournal("")
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	_, err = j.Record(context.Background(), Entry{IndexName: "products"})
	assert.Error(t, err)
	_, err = j.Recent(context.Background(), 1)
	assert.Error(t, err)
	_, err = j.Totals(context.Background(), "products")
	assert.Error(t, err)
}
