package launcher

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// DefaultDiagnosticLogName is the file name used in the temp directory.
const DefaultDiagnosticLogName = "genhat-llama-server.log"

// DefaultDiagnosticLogPath returns the diagnostic log location in the
// system temp directory.
func DefaultDiagnosticLogPath() string {
	return filepath.Join(os.TempDir(), DefaultDiagnosticLogName)
}

// DiagnosticLog is an append-only sink shared by every backend process.
// Each Write is one locked append, so lines from concurrent streams
// interleave but never tear.
type DiagnosticLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	path   string

	records *slog.Logger
}

// NewDiagnosticLog wraps an arbitrary writer.
func NewDiagnosticLog(w io.Writer) *DiagnosticLog {
	if w == nil {
		w = io.Discard
	}
	d := &DiagnosticLog{w: w}
	d.records = slog.New(slog.NewTextHandler(d, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return d
}

// OpenDiagnosticLog opens (creating if needed) the log file for appending.
// If the file cannot be opened the returned log discards writes and the
// error says why; the log is usable either way.
func OpenDiagnosticLog(path string) (*DiagnosticLog, error) {
	if path == "" {
		path = DefaultDiagnosticLogPath()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		d := NewDiagnosticLog(io.Discard)
		d.path = path
		return d, fmt.Errorf("open diagnostic log %s: %w", path, err)
	}

	d := NewDiagnosticLog(f)
	d.closer = f
	d.path = path
	return d, nil
}

// Path returns the file path, or empty for writer-backed logs.
func (d *DiagnosticLog) Path() string {
	return d.path
}

// Write appends p atomically with respect to other writers. Failures are
// swallowed; diagnostics must never break the caller.
func (d *DiagnosticLog) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, _ = d.w.Write(p)
	return len(p), nil
}

// Session writes a start marker for a backend and returns the session id
// stamped on it.
func (d *DiagnosticLog) Session(name string) string {
	id := uuid.NewString()
	_, _ = fmt.Fprintf(d, "--- %s start --- session=%s\n", name, id)
	return id
}

// Record appends a structured entry.
func (d *DiagnosticLog) Record(msg string, args ...any) {
	d.records.Info(msg, args...)
}

// Close closes the underlying file, if any.
func (d *DiagnosticLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	d.w = io.Discard
	return err
}

// Drain copies r into dst one line at a time as "[tag] line" until r is
// exhausted, then closes r. Lines have no length limit and a trailing
// partial line is flushed at EOF. Read and write errors end or skip
// silently.
func Drain(r io.ReadCloser, tag string, dst io.Writer) {
	defer r.Close()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			_, _ = fmt.Fprintf(dst, "[%s] %s\n", tag, line)
		}
		if err != nil {
			return
		}
	}
}
