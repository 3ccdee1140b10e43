// Package index is the authoritative indexing point. A Coordinator owns
// the on-disk document indexes under one data directory and applies
// batches to them in arrival order.
package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/internal/store"
	"github.com/Aman-CERP/amanuensis/pkg/indexer"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// DefaultMaxIndexes is the number of indexes kept open when the config
// does not say otherwise.
const DefaultMaxIndexes = 8

// JournalFile is the journal database name inside the data directory.
const JournalFile = "journal.db"

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// DataDir holds one directory per index, the lock files and the
	// journal. Empty keeps everything in memory and takes no locks.
	DataDir string

	// MaxIndexes is how many indexes stay open; the least recently used
	// one is closed to make room.
	MaxIndexes int

	Logger *slog.Logger
}

// IndexStats describes one index.
type IndexStats struct {
	Name      string       `json:"name"`
	Open      bool         `json:"open"`
	Documents uint64       `json:"documents"`
	Journal   store.Totals `json:"journal"`
}

// Coordinator applies batches to the indexes it owns. Batches for one index
// are applied one at a time in arrival order; different indexes proceed
// concurrently.
type Coordinator struct {
	config  CoordinatorConfig
	logger  *slog.Logger
	journal *store.Journal

	mu      sync.Mutex
	indexes *lru.Cache[string, *openIndex]
	closing map[string]chan struct{}
	closed  bool
}

// openIndex is one open document index and the lock that makes this
// process its only writer.
type openIndex struct {
	name   string
	mu     sync.Mutex
	doc    *store.DocumentIndex
	lock   *fileLock
	closed bool
}

func (o *openIndex) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	err := o.doc.Close()
	if o.lock != nil {
		err = errors.Join(err, o.lock.unlock())
	}
	return err
}

var _ indexer.Dispatcher = (*Coordinator)(nil)

// NewCoordinator opens the journal and prepares the index cache.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.MaxIndexes <= 0 {
		config.MaxIndexes = DefaultMaxIndexes
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	journalPath := ""
	if config.DataDir != "" {
		if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeIndexOpen, "failed to create data directory", err).
				WithDetail("path", config.DataDir)
		}
		journalPath = filepath.Join(config.DataDir, JournalFile)
	}
	journal, err := store.OpenJournal(journalPath)
	if err != nil {
		return nil, err
	}

	cache, err := lru.New[string, *openIndex](config.MaxIndexes)
	if err != nil {
		_ = journal.Close()
		return nil, amerrors.InternalError("failed to create index cache", err)
	}

	return &Coordinator{
		config:  config,
		logger:  logger,
		journal: journal,
		indexes: cache,
		closing: make(map[string]chan struct{}),
	}, nil
}

// Dispatch applies batch to its index. An invalid batch is rejected before
// anything is written. Any other error leaves the operations before the
// failing one applied.
func (c *Coordinator) Dispatch(ctx context.Context, batch *ops.Batch) error {
	if batch == nil {
		return amerrors.ValidationError("batch must not be nil", nil)
	}
	name := batch.IndexName()
	if err := ValidateName(name); err != nil {
		return err
	}

	for {
		oi, err := c.acquire(name)
		if err != nil {
			return err
		}

		oi.mu.Lock()
		if oi.closed {
			// Evicted between acquire and lock; reopen.
			oi.mu.Unlock()
			continue
		}
		err = c.apply(ctx, oi, batch)
		oi.mu.Unlock()
		return err
	}
}

// apply runs the batch and journals the outcome. Caller holds oi.mu.
func (c *Coordinator) apply(ctx context.Context, oi *openIndex, batch *ops.Batch) error {
	start := time.Now()
	result, applyErr := oi.doc.Apply(ctx, batch)

	if _, err := c.journal.Record(context.WithoutCancel(ctx), store.NewEntry(batch, result, applyErr)); err != nil {
		c.logger.Warn("journal_record_failed",
			slog.String("index", oi.name),
			slog.String("error", err.Error()))
	}

	if applyErr != nil {
		c.logger.Warn("batch_apply_failed",
			slog.String("index", oi.name),
			slog.Int("operations", batch.Len()),
			slog.Int("added", result.Added),
			slog.Int("deleted", result.Deleted),
			slog.String("error", applyErr.Error()))
		return applyErr
	}

	c.logger.Debug("batch_applied",
		slog.String("index", oi.name),
		slog.Int("operations", batch.Len()),
		slog.Int("added", result.Added),
		slog.Int("deleted", result.Deleted),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// acquire returns the open index for name, opening it if needed. An
// evicted index is closed after c.mu is released, so a long batch on it
// does not hold up other indexes.
func (c *Coordinator) acquire(name string) (*openIndex, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, amerrors.New(amerrors.ErrCodeIndexOpen, "coordinator is closed", nil)
		}
		if oi, ok := c.indexes.Get(name); ok {
			c.mu.Unlock()
			return oi, nil
		}
		if done, ok := c.closing[name]; ok {
			// Still being closed after eviction; its lock is not free yet.
			c.mu.Unlock()
			<-done
			continue
		}

		var evicted *openIndex
		var evictedDone chan struct{}
		if c.indexes.Len() >= c.config.MaxIndexes {
			if _, oldest, ok := c.indexes.RemoveOldest(); ok {
				evicted = oldest
				evictedDone = make(chan struct{})
				c.closing[oldest.name] = evictedDone
			}
		}

		oi, err := c.open(name)
		if err == nil {
			c.indexes.Add(name, oi)
		}
		c.mu.Unlock()

		if evicted != nil {
			c.evict(evicted, evictedDone)
		}
		return oi, err
	}
}

// evict closes an index removed from the cache and wakes anyone waiting
// to reopen it.
func (c *Coordinator) evict(oi *openIndex, done chan struct{}) {
	if err := oi.close(); err != nil {
		c.logger.Warn("index_close_failed",
			slog.String("index", oi.name),
			slog.String("error", err.Error()))
	}
	c.logger.Debug("index_evicted", slog.String("index", oi.name))

	c.mu.Lock()
	delete(c.closing, oi.name)
	c.mu.Unlock()
	close(done)
}

// open locks and opens the index directory. Caller holds c.mu.
func (c *Coordinator) open(name string) (*openIndex, error) {
	oi := &openIndex{name: name}

	path := ""
	if c.config.DataDir != "" {
		lock := newFileLock(c.config.DataDir, name)
		acquired, err := lock.tryLock()
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeIndexOpen, "failed to lock index", err).
				WithDetail("index", name)
		}
		if !acquired {
			return nil, amerrors.New(amerrors.ErrCodeIndexLocked, "index is owned by another process", nil).
				WithDetail("index", name).
				WithDetail("lock", lock.path).
				WithSuggestion("Dispatch through the running daemon, or stop it first")
		}
		oi.lock = lock
		path = filepath.Join(c.config.DataDir, name)
	}

	doc, err := store.OpenDocumentIndex(path, c.logger)
	if err != nil {
		if oi.lock != nil {
			_ = oi.lock.unlock()
		}
		return nil, err
	}
	oi.doc = doc

	c.logger.Debug("index_opened", slog.String("index", name), slog.String("path", path))
	return oi, nil
}

// Stats reports document and journal counts for name. An index that has
// never been written is reported empty without being created.
func (c *Coordinator) Stats(ctx context.Context, name string) (*IndexStats, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	totals, err := c.journal.Totals(ctx, name)
	if err != nil {
		return nil, err
	}
	stats := &IndexStats{Name: name, Journal: totals}

	if !c.isOpen(name) && !c.exists(name) {
		return stats, nil
	}

	oi, err := c.acquire(name)
	if err != nil {
		return nil, err
	}
	n, err := oi.doc.Count()
	if err != nil {
		return nil, err
	}
	stats.Open = true
	stats.Documents = n
	return stats, nil
}

func (c *Coordinator) isOpen(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.Contains(name)
}

func (c *Coordinator) exists(name string) bool {
	if c.config.DataDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(c.config.DataDir, name))
	return err == nil
}

// OpenIndexes returns the names of the currently open indexes, sorted.
func (c *Coordinator) OpenIndexes() []string {
	c.mu.Lock()
	names := c.indexes.Keys()
	c.mu.Unlock()

	sort.Strings(names)
	return names
}

// Journal exposes the batch journal.
func (c *Coordinator) Journal() *store.Journal { return c.journal }

// Close closes all open indexes concurrently, then the journal. Batches
// being applied finish first.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := c.indexes.Values()
	c.indexes.Purge()
	c.mu.Unlock()

	var g errgroup.Group
	for _, oi := range open {
		g.Go(oi.close)
	}
	err := g.Wait()

	return errors.Join(err, c.journal.Close())
}
