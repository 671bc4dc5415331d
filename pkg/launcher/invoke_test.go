package launcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu    sync.Mutex
	calls []error
}

func (r *recordingMetrics) InvocationCompleted(backend string, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, err)
}

func TestInvoker_Success(t *testing.T) {
	exe := writeScript(t, "tts", `echo "synthesizing"; echo "RIFF" > "$2"`)
	out := filepath.Join(t.TempDir(), "out.wav")

	var diag bytes.Buffer
	metrics := &recordingMetrics{}
	inv := NewInvoker(NewDiagnosticLog(&diag), WithInvocationMetrics(metrics))

	result, err := inv.Run(context.Background(), Invocation{
		Executable: exe,
		Args:       []string{"--output", out},
		OutputPath: out,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "synthesizing\n", result.Stdout)
	assert.Equal(t, out, result.ArtifactPath)
	assert.Greater(t, result.Duration, time.Duration(0))

	assert.Contains(t, diag.String(), "--- test start ---")
	assert.Contains(t, diag.String(), "[stdout] synthesizing")
	assert.Contains(t, diag.String(), "exit_code=0")

	require.Len(t, metrics.calls, 1)
	assert.NoError(t, metrics.calls[0])
}

func TestInvoker_MissingArtifactFailsBeforeSpawn(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	exe := writeScript(t, "tts", `touch "`+marker+`"`)

	dir := t.TempDir()
	present := filepath.Join(dir, "s3gen-bf16.gguf")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))
	missing := filepath.Join(dir, "ve_fp32-f16.gguf")

	_, err := NewInvoker(nil).Run(context.Background(), Invocation{
		Executable:        exe,
		RequiredArtifacts: []string{present, missing},
	})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeMissingArtifact))
	assert.Contains(t, err.Error(), missing)

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "process must not be spawned")
}

func TestInvoker_NonZeroExitCarriesOutput(t *testing.T) {
	exe := writeScript(t, "tts", `echo "loaded"; echo "fatal: bad gguf" >&2; exit 1`)

	_, err := NewInvoker(nil).Run(context.Background(), Invocation{Executable: exe})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeInvocationFailed))

	stdout, stderr := CapturedOutput(err)
	assert.Equal(t, "loaded\n", stdout)
	assert.Equal(t, "fatal: bad gguf\n", stderr)
}

func TestInvoker_CleanExitWithoutArtifact(t *testing.T) {
	exe := writeScript(t, "tts", `echo "done"`)
	out := filepath.Join(t.TempDir(), "never.wav")

	_, err := NewInvoker(nil).Run(context.Background(), Invocation{Executable: exe, OutputPath: out})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeInvocationFailed))
	stdout, _ := CapturedOutput(err)
	assert.Equal(t, "done\n", stdout)
}

func TestInvoker_RunsInExecutableDir(t *testing.T) {
	exe := writeScript(t, "tts", `test -f ./tts && echo here`)

	result, err := NewInvoker(nil).Run(context.Background(), Invocation{Executable: exe})
	require.NoError(t, err)
	assert.Equal(t, "here\n", result.Stdout)
}

func TestInvoker_ContextCancellation(t *testing.T) {
	exe := writeScript(t, "tts", `exec sleep 30`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewInvoker(nil).Run(ctx, Invocation{Executable: exe})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeInvocationFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestInvoker_ConcurrentRunsAreIndependent(t *testing.T) {
	exe := writeScript(t, "tts", `echo "$1"`)
	inv := NewInvoker(nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for n := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r, err := inv.Run(context.Background(), Invocation{Executable: exe, Args: []string{string(rune('a' + n))}})
			if assert.NoError(t, err) {
				results[n] = r.Stdout
			}
		}(n)
	}
	wg.Wait()

	for n, out := range results {
		assert.Equal(t, string(rune('a'+n))+"\n", out)
	}
}

func TestInvoker_SpawnFailure(t *testing.T) {
	dir := t.TempDir()
	exe := &ResolvedExecutable{Backend: "speech-synthesis", Path: filepath.Join(dir, "missing"), Dir: dir}

	_, err := NewInvoker(nil).Run(context.Background(), Invocation{Executable: exe})
	assert.True(t, IsErrorCode(err, ErrorCodeLaunchFailed))

	_, err = NewInvoker(nil).Run(context.Background(), Invocation{})
	assert.True(t, IsErrorCode(err, ErrorCodeInvalidConfiguration))
}
