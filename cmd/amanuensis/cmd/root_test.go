package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanuensis/internal/index"
)

// cliEnv isolates a CLI run from the user's config and daemon.
func cliEnv(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("AMANUENSIS_DATA_DIR", tmp+"/data")
	t.Setenv("AMANUENSIS_SOCKET", tmp+"/daemon.sock")
	t.Setenv("AMANUENSIS_PID_FILE", tmp+"/daemon.pid")
	t.Setenv("AMANUENSIS_DISPATCH_MODE", "local")
	t.Setenv("AMANUENSIS_INDEX", "")
	t.Setenv("NO_COLOR", "1")
	return tmp
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// statsOf reads the stats of name through the CLI.
func statsOf(t *testing.T, dir, name string) index.IndexStats {
	t.Helper()
	out, err := runCLI(t, dir, "stats", name, "--json")
	require.NoError(t, err)
	var stats index.IndexStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	return stats
}

func TestRootCmd_HasCommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// When: listing its subcommands
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	// Then: every command is registered
	for _, want := range []string{"add", "delete", "batch", "stats", "daemon", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// Then: the global flags exist
	for _, name := range []string{"debug", "dir", "index", "local"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag --%s", name)
	}
	assert.Equal(t, "i", cmd.PersistentFlags().Lookup("index").Shorthand)
}

func TestRootCmd_IndexFlagOverridesConfig(t *testing.T) {
	// Given: an isolated environment
	dir := cliEnv(t)

	// When: showing config with --index
	out, err := runCLI(t, dir, "--index", "orders", "config", "show")

	// Then: the flag wins over the default
	require.NoError(t, err)
	assert.Contains(t, out, "name: orders")
}

func TestRootCmd_InvalidProjectConfigFails(t *testing.T) {
	// Given: a project config that does not parse
	dir := cliEnv(t)
	writeFile(t, dir+"/.amanuensis.yaml", "index: [unclosed\n")

	// When: running any command
	_, err := runCLI(t, dir, "config", "show")

	// Then: loading fails
	require.Error(t, err)
}
