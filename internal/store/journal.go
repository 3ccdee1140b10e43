package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
)

// Journal records applied batches in SQLite.
type Journal struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenJournal opens or creates the journal database at path. An empty
// path creates an in-memory journal.
func OpenJournal(path string) (*Journal, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeJournal, "failed to create journal directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeJournal, "failed to open journal", err)
	}

	// Single writer; an in-memory database also lives on exactly one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, amerrors.New(amerrors.ErrCodeJournal, "failed to set pragma", err)
		}
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(); err != nil {
		_ = db.Close()
		return nil, amerrors.New(amerrors.ErrCodeJournal, "failed to initialize journal schema", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS batches (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		index_name       TEXT    NOT NULL,
		adds             INTEGER NOT NULL DEFAULT 0,
		deletes_by_query INTEGER NOT NULL DEFAULT 0,
		deletes_by_term  INTEGER NOT NULL DEFAULT 0,
		deleted          INTEGER NOT NULL DEFAULT 0,
		applied_at       INTEGER NOT NULL,
		error            TEXT    NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_batches_index ON batches(index_name);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends e and returns its assigned id.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, amerrors.New(amerrors.ErrCodeJournal, "journal is closed", nil)
	}
	if e.AppliedAt.IsZero() {
		e.AppliedAt = time.Now().UTC()
	}

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO batches(index_name, adds, deletes_by_query, deletes_by_term, deleted, applied_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.IndexName, e.Adds, e.DeletesByQuery, e.DeletesByTerm, e.Deleted, e.AppliedAt.UnixNano(), e.Error)
	if err != nil {
		return 0, amerrors.New(amerrors.ErrCodeJournal, "failed to record batch", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, amerrors.New(amerrors.ErrCodeJournal, "journal is closed", nil)
	}
	if limit <= 0 {
		return []Entry{}, nil
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, index_name, adds, deletes_by_query, deletes_by_term, deleted, applied_at, error
		 FROM batches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeJournal, "failed to query journal", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.IndexName, &e.Adds, &e.DeletesByQuery, &e.DeletesByTerm, &e.Deleted, &ts, &e.Error); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeJournal, "failed to scan journal row", err)
		}
		e.AppliedAt = time.Unix(0, ts).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeJournal, "failed to read journal", err)
	}
	return entries, nil
}

// Totals aggregates all entries recorded for index.
func (j *Journal) Totals(ctx context.Context, index string) (Totals, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var t Totals
	if j.closed {
		return t, amerrors.New(amerrors.ErrCodeJournal, "journal is closed", nil)
	}

	var last int64
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(adds), 0),
		        COALESCE(SUM(deletes_by_query), 0),
		        COALESCE(SUM(deletes_by_term), 0),
		        COALESCE(SUM(deleted), 0),
		        COALESCE(MAX(applied_at), 0)
		 FROM batches WHERE index_name = ?`, index).
		Scan(&t.Batches, &t.Failed, &t.Adds, &t.DeletesByQuery, &t.DeletesByTerm, &t.Deleted, &last)
	if err != nil {
		return t, amerrors.New(amerrors.ErrCodeJournal, fmt.Sprintf("failed to total journal for %s", index), err)
	}
	if last > 0 {
		t.LastAppliedAt = time.Unix(0, last).UTC()
	}
	return t, nil
}

// Close closes the journal. Closing twice is a no-op.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
