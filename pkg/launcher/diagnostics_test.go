package launcher

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

type failingReader struct{ n int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n == 0 {
		f.n++
		return copy(p, "first\nsecond"), nil
	}
	return 0, errors.New("pipe broken")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDrain_TagsEachLine(t *testing.T) {
	var buf bytes.Buffer
	src := &closeTracker{Reader: strings.NewReader("loading model\r\nlistening on 8081\npartial")}

	Drain(src, "stdout", &buf)

	assert.Equal(t, "[stdout] loading model\n[stdout] listening on 8081\n[stdout] partial\n", buf.String())
	assert.True(t, src.closed)
}

func TestDrain_LongLines(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("x", 1<<20)

	Drain(io.NopCloser(strings.NewReader(long+"\n")), "stderr", &buf)

	assert.Equal(t, "[stderr] "+long+"\n", buf.String())
}

func TestDrain_StopsOnReadError(t *testing.T) {
	var buf bytes.Buffer
	Drain(io.NopCloser(&failingReader{}), "stderr", &buf)

	assert.Equal(t, "[stderr] first\n[stderr] second\n", buf.String())
}

func TestDrain_SwallowsWriteErrors(t *testing.T) {
	src := &closeTracker{Reader: strings.NewReader("a\nb\n")}
	assert.NotPanics(t, func() {
		Drain(src, "stdout", failingWriter{})
	})
	assert.True(t, src.closed)
}

func TestDiagnosticLog_ConcurrentLinesDoNotTear(t *testing.T) {
	var buf bytes.Buffer
	d := NewDiagnosticLog(&buf)

	var wg sync.WaitGroup
	for _, tag := range []string{"stdout", "stderr"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			input := strings.Repeat(tag+" line payload\n", 200)
			Drain(io.NopCloser(strings.NewReader(input)), tag, d)
		}(tag)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 400)
	for _, line := range lines {
		assert.True(t,
			line == "[stdout] stdout line payload" || line == "[stderr] stderr line payload",
			"torn line: %q", line)
	}
}

func TestDiagnosticLog_SessionAndRecord(t *testing.T) {
	var buf bytes.Buffer
	d := NewDiagnosticLog(&buf)

	id := d.Session("llama-server")
	d.Record("spawned", "exe", "/opt/bin/llama-server", "pid", 4242)

	out := buf.String()
	assert.Contains(t, out, "--- llama-server start --- session="+id)
	assert.Contains(t, out, "msg=spawned")
	assert.Contains(t, out, "exe=/opt/bin/llama-server")
	assert.Contains(t, out, "pid=4242")
}

func TestOpenDiagnosticLog_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.log")

	d, err := OpenDiagnosticLog(path)
	require.NoError(t, err)
	_, _ = d.Write([]byte("one\n"))
	require.NoError(t, d.Close())

	d, err = OpenDiagnosticLog(path)
	require.NoError(t, err)
	_, _ = d.Write([]byte("two\n"))
	require.NoError(t, d.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
	assert.Equal(t, path, d.Path())

	// Writes after close are discarded, not errors
	n, err := d.Write([]byte("three\n"))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestOpenDiagnosticLog_DegradesWhenUnopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "diag.log")

	d, err := OpenDiagnosticLog(path)
	assert.Error(t, err)
	require.NotNil(t, d)

	n, werr := d.Write([]byte("ignored\n"))
	assert.NoError(t, werr)
	assert.Equal(t, 8, n)
	assert.NoError(t, d.Close())
}

func TestDefaultDiagnosticLogPath(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), DefaultDiagnosticLogName), DefaultDiagnosticLogPath())
}
