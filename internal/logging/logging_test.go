package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintfWritesFormattedLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "", true)
	l.Printf("lifecycle", 0, "restart requested via %s", "SIGHUP")

	out := buf.String()
	assert.Contains(t, out, "lifecycle")
	assert.Contains(t, out, "restart requested via SIGHUP")
}

func TestPrintIndentsWithTabs(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "", true)
	l.Print("worker", 2, "spawned")

	out := buf.String()
	assert.True(t, strings.Contains(out, "\t\tspawned"))
}

func TestLabelIsPaddedOrTruncatedTo13Columns(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "", true)
	l.Print("x", 0, "short label")
	l.Print("a-very-long-component-label", 0, "long label")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	// Header: "[timestamp] pid<5> label<13> msg" — label starts right after
	// the fixed pid column, so its field is always exactly 13 wide.
	for _, line := range lines {
		parts := strings.SplitN(line, "] ", 2)
		require.Len(t, parts, 2)
		rest := parts[1]
		require.GreaterOrEqual(t, len(rest), 5+1+13)
		labelField := rest[5+1 : 5+1+13]
		assert.Len(t, labelField, 13)
	}
}

func TestStdLoggerTagsLinesWithLabel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "", true)
	std := l.StdLogger("mediator")
	std.Print("child exited")

	assert.Contains(t, buf.String(), "mediator")
	assert.Contains(t, buf.String(), "child exited")
}

func TestNewFileWritesHeaderOnlyForParent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/daemon.log"

	l, err := NewFile(path, true)
	require.NoError(t, err)
	l.Print("init", 0, "hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Date")
	assert.Contains(t, string(data), "hello")

	childPath := dir + "/child.log"
	child, err := NewFile(childPath, false)
	require.NoError(t, err)
	child.Print("init", 0, "from child")

	data, err = os.ReadFile(childPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Date")
	assert.Contains(t, string(data), "from child")
}
