package index

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/pkg/indexer"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

func newTestCoordinator(t *testing.T, dataDir string, maxIndexes int) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(CoordinatorConfig{DataDir: dataDir, MaxIndexes: maxIndexes})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func add(id string) ops.Operation {
	return ops.Add(ops.Document{ID: id, Fields: map[string]any{"kind": "widget"}})
}

func TestCoordinator_Dispatch_AppliesAndJournals(t *testing.T) {
	// Given: an in-memory coordinator
	c := newTestCoordinator(t, "", 0)
	ctx := context.Background()

	// When: dispatching two batches
	require.NoError(t, c.Dispatch(ctx, ops.NewBatch("products", add("1"), add("2"))))
	require.NoError(t, c.Dispatch(ctx, ops.NewBatch("products", ops.DeleteByTerm(ops.Term{Field: "kind", Text: "widget"}))))

	// Then: stats reflect both
	stats, err := c.Stats(ctx, "products")
	require.NoError(t, err)
	assert.True(t, stats.Open)
	assert.Equal(t, uint64(0), stats.Documents)
	assert.Equal(t, 2, stats.Journal.Batches)
	assert.Equal(t, 2, stats.Journal.Adds)
	assert.Equal(t, 1, stats.Journal.DeletesByTerm)
	assert.Equal(t, 2, stats.Journal.Deleted)
}

func TestCoordinator_Dispatch_FailureIsJournaled(t *testing.T) {
	c := newTestCoordinator(t, "", 0)
	ctx := context.Background()

	err := c.Dispatch(ctx, ops.NewBatch("products", add("1"), ops.DeleteByQuery(ops.Query{Text: ""})))
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeInvalidQuery, amerrors.GetCode(err))

	stats, err := c.Stats(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Journal.Failed)
	assert.Equal(t, uint64(1), stats.Documents, "adds before the failing delete stay applied")
}

func TestCoordinator_Dispatch_RejectsBadInput(t *testing.T) {
	c := newTestCoordinator(t, "", 0)

	err := c.Dispatch(context.Background(), nil)
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))

	err = c.Dispatch(context.Background(), ops.NewBatch("../etc", add("1")))
	assert.Equal(t, amerrors.ErrCodeInvalidIndexName, amerrors.GetCode(err))
}

func TestCoordinator_Stats_UnknownIndexNotCreated(t *testing.T) {
	dir := t.TempDir()
	c := newTestCoordinator(t, dir, 0)

	stats, err := c.Stats(context.Background(), "never-written")
	require.NoError(t, err)
	assert.False(t, stats.Open)
	assert.Equal(t, uint64(0), stats.Documents)
	assert.NoDirExists(t, filepath.Join(dir, "never-written"))
	assert.Empty(t, c.OpenIndexes())
}

func TestCoordinator_EvictsLeastRecentlyUsed(t *testing.T) {
	// Given: room for two open indexes
	dir := t.TempDir()
	c := newTestCoordinator(t, dir, 2)
	ctx := context.Background()

	// When: writing to three indexes
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, c.Dispatch(ctx, ops.NewBatch(name, add(name+"-1"))))
	}

	// Then: the oldest is closed, and reopening it finds its data
	assert.Equal(t, []string{"b", "c"}, c.OpenIndexes())
	stats, err := c.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Documents)
	assert.Len(t, c.OpenIndexes(), 2)
}

func TestCoordinator_EvictionDoesNotBlockOtherIndexes(t *testing.T) {
	// Given: two open indexes, with a batch still running on the older one
	dir := t.TempDir()
	c := newTestCoordinator(t, dir, 2)
	ctx := context.Background()
	require.NoError(t, c.Dispatch(ctx, ops.NewBatch("a", add("a-1"))))
	require.NoError(t, c.Dispatch(ctx, ops.NewBatch("b", add("b-1"))))

	c.mu.Lock()
	busy, ok := c.indexes.Peek("a")
	c.mu.Unlock()
	require.True(t, ok)
	busy.mu.Lock()

	// When: a third index evicts the busy one
	opened := make(chan error, 1)
	go func() {
		_, err := c.acquire("c")
		opened <- err
	}()
	require.Eventually(t, func() bool {
		names := c.OpenIndexes()
		return len(names) == 2 && names[1] == "c"
	}, 5*time.Second, 10*time.Millisecond)

	// Then: batches for the other open index still go through
	done := make(chan error, 1)
	go func() { done <- c.Dispatch(ctx, ops.NewBatch("b", add("b-2"))) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		busy.mu.Unlock()
		t.Fatal("dispatch to b blocked behind the eviction of a")
	}

	// And: once the batch ends, the evicted index closes and reopens with its data
	busy.mu.Unlock()
	require.NoError(t, <-opened)
	stats, err := c.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Documents)
}

func TestCoordinator_SecondOwnerIsLockedOut(t *testing.T) {
	// Given: one coordinator owns "products"
	dir := t.TempDir()
	first := newTestCoordinator(t, dir, 0)
	require.NoError(t, first.Dispatch(context.Background(), ops.NewBatch("products", add("1"))))

	// When: a second coordinator on the same data dir writes to it
	second, err := NewCoordinator(CoordinatorConfig{DataDir: dir})
	require.NoError(t, err)
	defer func() { _ = second.Close() }()
	err = second.Dispatch(context.Background(), ops.NewBatch("products", add("2")))

	// Then: it is refused
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeIndexLocked, amerrors.GetCode(err))

	// And: once the first closes, the second can write
	require.NoError(t, first.Close())
	assert.NoError(t, second.Dispatch(context.Background(), ops.NewBatch("products", add("2"))))
}

func TestCoordinator_ConcurrentSessionsThroughWriter(t *testing.T) {
	// Given: a writer dispatching to the coordinator
	c := newTestCoordinator(t, "", 0)
	w, err := indexer.New("products", indexer.WithDispatcher(c))
	require.NoError(t, err)

	// When: many goroutines each run their own batch
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			s := w.NewSession()
			if err := s.StartBatch(); err != nil {
				return err
			}
			for j := 0; j < 5; j++ {
				if err := s.AddDocument(context.Background(), ops.Document{ID: fmt.Sprintf("%d-%d", i, j)}); err != nil {
					return err
				}
			}
			return s.EndBatch(context.Background())
		})
	}
	require.NoError(t, g.Wait())

	// Then: every document and every batch landed
	stats, err := c.Stats(context.Background(), "products")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), stats.Documents)
	assert.Equal(t, 8, stats.Journal.Batches)
}

func TestCoordinator_CloseIsIdempotentAndFinal(t *testing.T) {
	c, err := NewCoordinator(CoordinatorConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(context.Background(), ops.NewBatch("products", add("1"))))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err = c.Dispatch(context.Background(), ops.NewBatch("products", add("2")))
	assert.Equal(t, amerrors.ErrCodeIndexOpen, amerrors.GetCode(err))
}

func TestValidateName(t *testing.T) {
	valid := []string{"products", "orders-2026", "a_b", "X"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "-lead", "has space", "dot.name", "../up", "slash/name", string(make([]byte, MaxNameLength+1))}
	for _, name := range invalid {
		err := ValidateName(name)
		require.Error(t, err, name)
		assert.Equal(t, amerrors.ErrCodeInvalidIndexName, amerrors.GetCode(err))
	}
}
