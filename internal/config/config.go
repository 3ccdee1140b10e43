// Package config loads amanuensis configuration from YAML files and
// AMANUENSIS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
)

// Dispatch modes.
const (
	// DispatchLocal applies batches in-process against the data directory.
	DispatchLocal = "local"
	// DispatchRemote sends batches to the daemon over its unix socket.
	DispatchRemote = "remote"
)

// Config represents the complete amanuensis configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Daemon   DaemonConfig   `yaml:"daemon" json:"daemon"`
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// IndexConfig configures the index writers target and where the
// authoritative node keeps its data.
type IndexConfig struct {
	// Name is the default index for CLI writes.
	Name string `yaml:"name" json:"name"`
	// DataDir holds one bleve index per index name, the lock files and
	// the batch journal. Default: ~/.amanuensis/data
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// DaemonConfig configures the authoritative indexing daemon.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
	// Timeout bounds one client round trip (e.g. "30s").
	Timeout string `yaml:"timeout" json:"timeout"`
	// MaxIndexes is how many indexes the daemon keeps open (LRU).
	MaxIndexes int `yaml:"max_indexes" json:"max_indexes"`
}

// DispatchConfig configures how writers reach the authoritative node.
type DispatchConfig struct {
	// Mode is "local" or "remote".
	Mode string `yaml:"mode" json:"mode"`
	// MaxRetries bounds reconnect attempts to the daemon. Batches the
	// daemon rejected are never retried.
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	InitialDelay string `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string `yaml:"max_delay" json:"max_delay"`
	// BreakerFailures opens the circuit after this many consecutive
	// connection failures; BreakerReset is how long it stays open.
	BreakerFailures int    `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    string `yaml:"breaker_reset" json:"breaker_reset"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	base := baseDir()
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Name:    "default",
			DataDir: filepath.Join(base, "data"),
		},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(base, "daemon.sock"),
			PIDPath:    filepath.Join(base, "daemon.pid"),
			Timeout:    "30s",
			MaxIndexes: 8,
		},
		Dispatch: DispatchConfig{
			Mode:            DispatchRemote,
			MaxRetries:      3,
			InitialDelay:    "100ms",
			MaxDelay:        "2s",
			BreakerFailures: 5,
			BreakerReset:    "30s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// baseDir returns ~/.amanuensis, or a temp dir fallback.
func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanuensis")
	}
	return filepath.Join(home, ".amanuensis")
}

// GetUserConfigPath returns the user/global configuration file:
//   - $XDG_CONFIG_HOME/amanuensis/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amanuensis/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanuensis", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanuensis", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanuensis", "config.yaml")
}

// Load loads configuration for the project in dir, in increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/amanuensis/config.yaml)
//  3. Project config (.amanuensis.yaml or .amanuensis.yml in dir)
//  4. Environment variables (AMANUENSIS_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{".amanuensis.yaml", ".amanuensis.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, amerrors.ConfigError("invalid configuration", err)
	}
	return cfg, nil
}

// loadYAML merges the non-zero values of the file at path into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return amerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.Name != "" {
		c.Index.Name = other.Index.Name
	}
	if other.Index.DataDir != "" {
		c.Index.DataDir = other.Index.DataDir
	}

	if other.Daemon.SocketPath != "" {
		c.Daemon.SocketPath = other.Daemon.SocketPath
	}
	if other.Daemon.PIDPath != "" {
		c.Daemon.PIDPath = other.Daemon.PIDPath
	}
	if other.Daemon.Timeout != "" {
		c.Daemon.Timeout = other.Daemon.Timeout
	}
	if other.Daemon.MaxIndexes != 0 {
		c.Daemon.MaxIndexes = other.Daemon.MaxIndexes
	}

	if other.Dispatch.Mode != "" {
		c.Dispatch.Mode = other.Dispatch.Mode
	}
	if other.Dispatch.MaxRetries != 0 {
		c.Dispatch.MaxRetries = other.Dispatch.MaxRetries
	}
	if other.Dispatch.InitialDelay != "" {
		c.Dispatch.InitialDelay = other.Dispatch.InitialDelay
	}
	if other.Dispatch.MaxDelay != "" {
		c.Dispatch.MaxDelay = other.Dispatch.MaxDelay
	}
	if other.Dispatch.BreakerFailures != 0 {
		c.Dispatch.BreakerFailures = other.Dispatch.BreakerFailures
	}
	if other.Dispatch.BreakerReset != "" {
		c.Dispatch.BreakerReset = other.Dispatch.BreakerReset
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies AMANUENSIS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANUENSIS_INDEX"); v != "" {
		c.Index.Name = v
	}
	if v := os.Getenv("AMANUENSIS_DATA_DIR"); v != "" {
		c.Index.DataDir = v
	}
	if v := os.Getenv("AMANUENSIS_SOCKET"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("AMANUENSIS_PID_FILE"); v != "" {
		c.Daemon.PIDPath = v
	}
	if v := os.Getenv("AMANUENSIS_TIMEOUT"); v != "" {
		c.Daemon.Timeout = v
	}
	if v := os.Getenv("AMANUENSIS_MAX_INDEXES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Daemon.MaxIndexes = n
		}
	}
	if v := os.Getenv("AMANUENSIS_DISPATCH_MODE"); v != "" {
		c.Dispatch.Mode = strings.ToLower(v)
	}
	// Explicit zero disables reconnect retries, so parse rather than merge.
	if v := os.Getenv("AMANUENSIS_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Dispatch.MaxRetries = n
		}
	}
	if v := os.Getenv("AMANUENSIS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Index.Name == "" {
		return fmt.Errorf("index.name must not be empty")
	}
	if c.Index.DataDir == "" {
		return fmt.Errorf("index.data_dir must not be empty")
	}

	switch c.Dispatch.Mode {
	case DispatchLocal, DispatchRemote:
	default:
		return fmt.Errorf("dispatch.mode must be 'local' or 'remote', got %s", c.Dispatch.Mode)
	}
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch.max_retries must be non-negative, got %d", c.Dispatch.MaxRetries)
	}
	if c.Dispatch.BreakerFailures <= 0 {
		return fmt.Errorf("dispatch.breaker_failures must be positive, got %d", c.Dispatch.BreakerFailures)
	}
	if c.Daemon.MaxIndexes <= 0 {
		return fmt.Errorf("daemon.max_indexes must be positive, got %d", c.Daemon.MaxIndexes)
	}

	durations := map[string]string{
		"daemon.timeout":         c.Daemon.Timeout,
		"dispatch.initial_delay": c.Dispatch.InitialDelay,
		"dispatch.max_delay":     c.Dispatch.MaxDelay,
		"dispatch.breaker_reset": c.Dispatch.BreakerReset,
	}
	for key, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// DaemonTimeout returns daemon.timeout as a duration.
func (c *Config) DaemonTimeout() time.Duration {
	d, _ := parseDuration(c.Daemon.Timeout)
	return d
}

// RetryDelays returns dispatch.initial_delay and dispatch.max_delay.
func (c *Config) RetryDelays() (initial, max time.Duration) {
	initial, _ = parseDuration(c.Dispatch.InitialDelay)
	max, _ = parseDuration(c.Dispatch.MaxDelay)
	return initial, max
}

// BreakerReset returns dispatch.breaker_reset as a duration.
func (c *Config) BreakerReset() time.Duration {
	d, _ := parseDuration(c.Dispatch.BreakerReset)
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
