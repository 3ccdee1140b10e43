package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BufferIsNotATerminal(t *testing.T) {
	w := New(&bytes.Buffer{})

	assert.False(t, w.IsTerminal())
	assert.False(t, w.useColor)
	assert.False(t, IsTTY(nil))
}

func TestWriter_Messages_NoColorOffTerminal(t *testing.T) {
	// Given: a writer on a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing each message kind
	w.Success("batch applied")
	w.Warningf("%d pending", 3)
	w.Error("daemon unreachable")
	w.Status("", "indented")

	// Then: icons and text appear without escape codes
	out := buf.String()
	assert.Contains(t, out, "✓ batch applied")
	assert.Contains(t, out, "! 3 pending")
	assert.Contains(t, out, "✗ daemon unreachable")
	assert.Contains(t, out, "   indented")
	assert.NotContains(t, out, "\033[")
}

func TestWriter_Paint_WithColor(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, useColor: true}

	w.Success("ok")

	assert.Contains(t, buf.String(), colorGreen)
	assert.Contains(t, buf.String(), colorReset)
}

func TestWriter_KeyValues_Aligned(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.KeyValues(Field{"index", "products"}, Field{"documents", 42})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "index:     products", strings.TrimSpace(lines[0]))
	assert.Equal(t, "documents: 42", strings.TrimSpace(lines[1]))
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.JSON(map[string]int{"documents": 2}))
	assert.Equal(t, "{\n  \"documents\": 2\n}\n", buf.String())
}

func TestWriter_Progress_SilentOffTerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Progress(5, 10, "sending")

	assert.Empty(t, buf.String())
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), renderProgressBar(0, 10, 10))
	assert.Equal(t, strings.Repeat("█", 5)+strings.Repeat("░", 5), renderProgressBar(5, 10, 10))
	assert.Equal(t, strings.Repeat("█", 10), renderProgressBar(20, 10, 10))
	assert.Equal(t, strings.Repeat("░", 10), renderProgressBar(1, 0, 10))
}
