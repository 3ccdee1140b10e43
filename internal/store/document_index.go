package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// DocumentIndex is a bleve index that applies batches of operations.
// Safe for concurrent use; Apply calls are serialized.
type DocumentIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
	logger *slog.Logger
}

// validateIndexIntegrity checks a bleve index directory before opening.
// A missing directory is valid (it will be created).
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// OpenDocumentIndex opens or creates the index at path. An empty path
// creates an in-memory index. A corrupt on-disk index is cleared and
// recreated; the daemon journal still shows what was lost.
func OpenDocumentIndex(path string, logger *slog.Logger) (*DocumentIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	indexMapping := bleve.NewIndexMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeIndexOpen, "failed to create index directory", err).
				WithDetail("path", path)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			logger.Warn("document_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.RemoveAll(path); err != nil {
				return nil, amerrors.New(amerrors.ErrCodeCorruptIndex, "corrupt index cannot be cleared", err).
					WithDetail("path", path)
			}
		}

		idx, err = bleve.Open(path)
		switch {
		case err == bleve.ErrorIndexPathDoesNotExist:
			idx, err = bleve.New(path, indexMapping)
		case isCorruptionError(err):
			logger.Warn("document_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if clearErr := os.RemoveAll(path); clearErr != nil {
				return nil, amerrors.New(amerrors.ErrCodeCorruptIndex, "corrupt index cannot be cleared", clearErr).
					WithDetail("path", path)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIndexOpen, "failed to open index", err).WithDetail("path", path)
	}

	return &DocumentIndex{index: idx, path: path, logger: logger}, nil
}

// Path returns the on-disk location, or "" for in-memory indexes.
func (d *DocumentIndex) Path() string { return d.path }

// Apply executes the batch operations in order. Consecutive adds share one
// bleve batch; pending adds are flushed before each delete so the delete
// observes them. A batch that fails validation changes nothing. A failure
// while applying leaves the operations before the failing one applied.
func (d *DocumentIndex) Apply(ctx context.Context, batch *ops.Batch) (ApplyResult, error) {
	var result ApplyResult
	if batch == nil || batch.Len() == 0 {
		return result, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return result, amerrors.New(amerrors.ErrCodeIndexOpen, "index is closed", nil)
	}

	operations := batch.Operations()
	deletes, err := d.prepare(operations)
	if err != nil {
		return result, err
	}

	pending := d.index.NewBatch()
	flush := func() error {
		if pending.Size() == 0 {
			return nil
		}
		n := pending.Size()
		if err := d.index.Batch(pending); err != nil {
			return amerrors.New(amerrors.ErrCodeIndexOpen, "failed to execute batch", err)
		}
		result.Added += n
		pending.Reset()
		return nil
	}
	fail := func(err error) (ApplyResult, error) {
		if flushErr := flush(); flushErr != nil {
			err = errors.Join(err, flushErr)
		}
		return result, err
	}

	for i, op := range operations {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		if op.Kind() == ops.KindAdd {
			doc, _ := op.Document()
			if err := pending.Index(doc.ID, documentBody(doc)); err != nil {
				return fail(amerrors.ValidationError(fmt.Sprintf("operation %d: cannot index document %s", i, doc.ID), err))
			}
			continue
		}

		if err := flush(); err != nil {
			return result, err
		}
		n, err := d.deleteMatching(ctx, deletes[i])
		result.Deleted += n
		if err != nil {
			return result, err
		}
	}

	if err := flush(); err != nil {
		return result, err
	}
	return result, nil
}

// prepare checks every operation before anything is written and returns
// the delete query for each delete, keyed by position. Caller holds d.mu.
func (d *DocumentIndex) prepare(operations []ops.Operation) (map[int]query.Query, error) {
	deletes := make(map[int]query.Query)
	for i, op := range operations {
		switch op.Kind() {
		case ops.KindAdd:
			doc, _ := op.Document()
			if doc.ID == "" {
				return nil, amerrors.ValidationError(fmt.Sprintf("operation %d: document id must not be empty", i), nil)
			}
		case ops.KindDeleteByQuery, ops.KindDeleteByTerm:
			q, err := d.deleteQuery(op)
			if err != nil {
				return nil, err
			}
			deletes[i] = q
		default:
			return nil, amerrors.ValidationError(fmt.Sprintf("operation %d: unsupported kind %s", i, op.Kind()), nil)
		}
	}
	return deletes, nil
}

func documentBody(doc ops.Document) map[string]any {
	if doc.Fields == nil {
		return map[string]any{}
	}
	return doc.Fields
}

func (d *DocumentIndex) deleteQuery(op ops.Operation) (query.Query, error) {
	if q, ok := op.Query(); ok {
		if strings.TrimSpace(q.Text) == "" {
			return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "delete query must not be empty", nil)
		}
		return bleve.NewQueryStringQuery(q.Text), nil
	}
	t, _ := op.Term()
	if t.Field == "" || t.Text == "" {
		return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "delete term needs a field and text", nil)
	}
	return d.termQuery(t)
}

// termQuery matches t the way the field was indexed: the text goes through
// the field's analyzer, one token becomes a term query and several become
// a phrase.
func (d *DocumentIndex) termQuery(t ops.Term) (query.Query, error) {
	m := d.index.Mapping()
	analyzer := m.AnalyzerNamed(m.AnalyzerNameForPath(t.Field))
	if analyzer == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "no analyzer for delete term field", nil).
			WithDetail("field", t.Field)
	}
	tokens := analyzer.Analyze([]byte(t.Text))

	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	switch len(terms) {
	case 0:
		return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "delete term has no indexable text", nil).
			WithDetail("field", t.Field).
			WithDetail("text", t.Text)
	case 1:
		tq := bleve.NewTermQuery(terms[0])
		tq.SetField(t.Field)
		return tq, nil
	default:
		return bleve.NewPhraseQuery(terms, t.Field), nil
	}
}

// deleteMatching removes every document matching q. Caller holds d.mu.
func (d *DocumentIndex) deleteMatching(ctx context.Context, q query.Query) (int, error) {
	count, err := d.index.DocCount()
	if err != nil {
		return 0, amerrors.New(amerrors.ErrCodeIndexOpen, "failed to count documents", err)
	}
	if count == 0 {
		return 0, nil
	}

	req := bleve.NewSearchRequest(q)
	req.Size = int(count)
	req.Fields = []string{}

	res, err := d.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, amerrors.New(amerrors.ErrCodeInvalidQuery, "failed to resolve delete", err)
	}
	if len(res.Hits) == 0 {
		return 0, nil
	}

	b := d.index.NewBatch()
	for _, hit := range res.Hits {
		b.Delete(hit.ID)
	}
	if err := d.index.Batch(b); err != nil {
		return 0, amerrors.New(amerrors.ErrCodeIndexOpen, "failed to delete documents", err)
	}
	return len(res.Hits), nil
}

// Count returns the number of documents in the index.
func (d *DocumentIndex) Count() (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, amerrors.New(amerrors.ErrCodeIndexOpen, "index is closed", nil)
	}
	return d.index.DocCount()
}

// Search runs a query-string query and returns up to limit hits.
func (d *DocumentIndex) Search(ctx context.Context, queryStr string, limit int) ([]SearchHit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, amerrors.New(amerrors.ErrCodeIndexOpen, "index is closed", nil)
	}
	if strings.TrimSpace(queryStr) == "" {
		return []SearchHit{}, nil
	}

	req := bleve.NewSearchRequest(bleve.NewQueryStringQuery(queryStr))
	req.Size = limit
	res, err := d.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "search failed", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, SearchHit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close closes the index. Closing twice is a no-op.
func (d *DocumentIndex) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.index.Close()
}
