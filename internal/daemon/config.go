// Package daemon runs the authoritative indexing node as a background
// service. Index writers in other processes dispatch batches to it over a
// Unix socket; it applies them through an index.Coordinator.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/amanuensis/internal/config"
	"github.com/Aman-CERP/amanuensis/internal/index"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.amanuensis/daemon.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	// Default: ~/.amanuensis/daemon.pid
	PIDPath string

	// DataDir is where the coordinator keeps indexes and the journal.
	// Default: ~/.amanuensis/data
	DataDir string

	// Timeout is the maximum duration for client-daemon communication.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is how long in-flight requests get to finish.
	// Default: 10s
	ShutdownGracePeriod time.Duration

	// MaxIndexes is the maximum number of indexes to keep open.
	// Uses LRU eviction when exceeded.
	// Default: 8
	MaxIndexes int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}

	baseDir := filepath.Join(home, ".amanuensis")

	return Config{
		SocketPath:          filepath.Join(baseDir, "daemon.sock"),
		PIDPath:             filepath.Join(baseDir, "daemon.pid"),
		DataDir:             filepath.Join(baseDir, "data"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		MaxIndexes:          index.DefaultMaxIndexes,
	}
}

// FromConfig derives the daemon configuration from the loaded settings.
func FromConfig(cfg *config.Config) Config {
	c := DefaultConfig()
	c.SocketPath = cfg.Daemon.SocketPath
	c.PIDPath = cfg.Daemon.PIDPath
	c.DataDir = cfg.Index.DataDir
	c.Timeout = cfg.DaemonTimeout()
	c.MaxIndexes = cfg.Daemon.MaxIndexes
	return c
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	if c.MaxIndexes <= 0 {
		return fmt.Errorf("max indexes must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket, PID file and data.
func (c Config) EnsureDir() error {
	dirs := []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath), c.DataDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
