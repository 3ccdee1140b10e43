package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// fileLock is a cross-process exclusive lock on <dataDir>/<name>.lock.
// It marks the process holding it as the only writer for that index.
type fileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newFileLock(dataDir, name string) *fileLock {
	path := filepath.Join(dataDir, name+".lock")
	return &fileLock{path: path, flock: flock.New(path)}
}

// tryLock acquires the lock without blocking. It reports false when
// another process (or another handle in this process) holds it.
func (l *fileLock) tryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// unlock releases the lock. Safe to call on an unlocked fileLock.
func (l *fileLock) unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
