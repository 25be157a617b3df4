// Package logging implements the fixed-column log line format used across
// the daemon: one line per message, a header written once per file open,
// and a path that can be swapped through Reopen.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// Logger writes lines shaped like:
//
//	[2024-01-02 15:04:05] 12345 lifecycle     restart requested via SIGHUP
//
// PID is fixed at 5 columns (truncated/right-padded), label at 13.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	path     string
	isParent bool
	wroteHdr bool
}

// New builds a Logger writing to w. If path is non-empty, Reopen can later
// be used to point the logger at a new file when the watched path changes.
func New(w io.Writer, path string, isParent bool) *Logger {
	return &Logger{out: w, path: path, isParent: isParent}
}

// NewFile opens path for appending and returns a Logger bound to it.
func NewFile(path string, isParent bool) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	l := New(f, path, isParent)
	if isParent {
		l.writeHeader()
	}
	return l, nil
}

// Reopen points the logger at a freshly opened file at the same or a new
// path, writing a new header (parent only). Nothing in the daemon calls it:
// the log path is not watched or polled for changes.
func (l *Logger) Reopen(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: reopen %s: %w", path, err)
	}
	l.mu.Lock()
	if closer, ok := l.out.(io.Closer); ok {
		_ = closer.Close()
	}
	l.out = f
	l.path = path
	l.wroteHdr = false
	l.mu.Unlock()
	if l.isParent {
		l.writeHeader()
	}
	return nil
}

func (l *Logger) writeHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.wroteHdr {
		return
	}
	fmt.Fprintf(l.out, "\nDate                  Pid   Label         Message\n")
	l.wroteHdr = true
}

// Printf writes one formatted line labeled by label, indented by indent
// tab stops.
func (l *Logger) Printf(label string, indent int, format string, args ...any) {
	l.writeLine(label, indent, fmt.Sprintf(format, args...))
}

// Print writes one line labeled by label with no formatting.
func (l *Logger) Print(label string, indent int, msg string) {
	l.writeLine(label, indent, msg)
}

func (l *Logger) writeLine(label string, indent int, msg string) {
	pid := padPid(os.Getpid())
	lbl := padLabel(label)
	tabs := strings.Repeat("\t", indent)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] %s %s %s%s\n", time.Now().Format(timeFormat), pid, lbl, tabs, msg)
}

func padPid(pid int) string {
	s := strconv.Itoa(pid)
	if len(s) >= 5 {
		return s[:5]
	}
	return s + strings.Repeat(" ", 5-len(s))
}

func padLabel(label string) string {
	if len(label) >= 13 {
		return label[:13]
	}
	return label + strings.Repeat(" ", 13-len(label))
}

// StdLogger adapts Logger to the stdlib *log.Logger interface for code
// (third-party or otherwise) that expects one, tagging every line with the
// given label.
func (l *Logger) StdLogger(label string) *log.Logger {
	return log.New(labelWriter{l: l, label: label}, "", 0)
}

type labelWriter struct {
	l     *Logger
	label string
}

func (w labelWriter) Write(p []byte) (int, error) {
	w.l.Print(w.label, 0, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
