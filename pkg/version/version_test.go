package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, v, commit, date string) {
	t.Helper()
	oldV, oldC, oldD := Version, Commit, Date
	Version, Commit, Date = v, commit, date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })
}

func TestString_IncludesBuildInfo(t *testing.T) {
	// Given: a release build
	withBuild(t, "1.4.0", "abc1234", "2026-01-02T03:04:05Z")

	// When: formatting the version line
	s := String()

	// Then: every build field is named once
	assert.True(t, strings.HasPrefix(s, "amanuensis 1.4.0 "), "got %q", s)
	assert.Contains(t, s, "commit: abc1234")
	assert.Contains(t, s, "built: 2026-01-02T03:04:05Z")
	assert.Contains(t, s, "go: "+GoVersion)
}

func TestShort_IsJustTheVersion(t *testing.T) {
	withBuild(t, "dev", "unknown", "unknown")
	assert.Equal(t, "dev", Short())
}

func TestGetInfo_JSONFields(t *testing.T) {
	// Given: a release build
	withBuild(t, "1.4.0", "abc1234", "2026-01-02T03:04:05Z")

	// When: encoding the build info
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	// Then: the wire names are stable and platform comes from the runtime
	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]string{
		"version":    "1.4.0",
		"commit":     "abc1234",
		"date":       "2026-01-02T03:04:05Z",
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}, got)
}
