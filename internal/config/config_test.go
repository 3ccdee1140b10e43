package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
)

// isolate points the user config lookup at an empty temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "default", cfg.Index.Name)
	assert.Contains(t, cfg.Index.DataDir, filepath.Join(".amanuensis", "data"))
	assert.Contains(t, cfg.Daemon.SocketPath, "daemon.sock")
	assert.Equal(t, 8, cfg.Daemon.MaxIndexes)
	assert.Equal(t, DispatchRemote, cfg.Dispatch.Mode)
	assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_DurationAccessors(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 30*time.Second, cfg.DaemonTimeout())
	initial, max := cfg.RetryDelays()
	assert.Equal(t, 100*time.Millisecond, initial)
	assert.Equal(t, 2*time.Second, max)
	assert.Equal(t, 30*time.Second, cfg.BreakerReset())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Dispatch, cfg.Dispatch)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	// Given: a project config
	isolate(t)
	dir := t.TempDir()
	yaml := `
index:
  name: products
dispatch:
  mode: local
  max_retries: 7
daemon:
  timeout: 5s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanuensis.yaml"), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: file values win, the rest stays default
	require.NoError(t, err)
	assert.Equal(t, "products", cfg.Index.Name)
	assert.Equal(t, DispatchLocal, cfg.Dispatch.Mode)
	assert.Equal(t, 7, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.DaemonTimeout())
	assert.Equal(t, 8, cfg.Daemon.MaxIndexes)
}

func TestLoad_YmlFallback(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanuensis.yml"), []byte("index:\n  name: yml\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "yml", cfg.Index.Name)
}

func TestLoad_UserConfigThenProject(t *testing.T) {
	// Given: user config sets two values, project overrides one
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "amanuensis"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "amanuensis", "config.yaml"),
		[]byte("index:\n  name: user\nlogging:\n  level: debug\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanuensis.yaml"), []byte("index:\n  name: project\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "project", cfg.Index.Name)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanuensis.yaml"), []byte("index:\n  name: file\n"), 0o644))

	t.Setenv("AMANUENSIS_INDEX", "env")
	t.Setenv("AMANUENSIS_DISPATCH_MODE", "LOCAL")
	t.Setenv("AMANUENSIS_MAX_RETRIES", "0")
	t.Setenv("AMANUENSIS_MAX_INDEXES", "not-a-number")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Index.Name)
	assert.Equal(t, DispatchLocal, cfg.Dispatch.Mode)
	assert.Equal(t, 0, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 8, cfg.Daemon.MaxIndexes)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanuensis.yaml"), []byte("index: [unterminated"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty index name", func(c *Config) { c.Index.Name = "" }},
		{"empty data dir", func(c *Config) { c.Index.DataDir = "" }},
		{"bad mode", func(c *Config) { c.Dispatch.Mode = "carrier-pigeon" }},
		{"negative retries", func(c *Config) { c.Dispatch.MaxRetries = -1 }},
		{"zero breaker failures", func(c *Config) { c.Dispatch.BreakerFailures = 0 }},
		{"zero max indexes", func(c *Config) { c.Daemon.MaxIndexes = 0 }},
		{"bad timeout", func(c *Config) { c.Daemon.Timeout = "soon" }},
		{"negative delay", func(c *Config) { c.Dispatch.MaxDelay = "-1s" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Index.Name = "written"

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".amanuensis.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "written", loaded.Index.Name)
}
