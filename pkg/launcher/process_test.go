package launcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script and returns it resolved.
func writeScript(t *testing.T, name, body string) *ResolvedExecutable {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a POSIX shell")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return &ResolvedExecutable{Backend: "test", Path: path, Dir: dir}
}

func waitExit(t *testing.T, p *ManagedProcess) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = p.Wait(ctx)
	require.True(t, p.Exited(), "process did not exit in time")
}

func TestLaunch_PipesStreamsIntoDiagnostics(t *testing.T) {
	exe := writeScript(t, "server", `echo "model loaded"; echo "warn: slow disk" >&2; printf "no newline"`)

	var buf bytes.Buffer
	l := NewProcessLauncher(NewDiagnosticLog(&buf))

	p, err := l.Launch(context.Background(), exe, nil, StreamPipe)
	require.NoError(t, err)
	assert.Greater(t, p.PID(), 0)
	assert.Equal(t, exe.Path, p.Executable())

	waitExit(t, p)
	p.WaitDrained()

	out := buf.String()
	assert.Contains(t, out, "[stdout] model loaded\n")
	assert.Contains(t, out, "[stderr] warn: slow disk\n")
	assert.Contains(t, out, "[stdout] no newline\n")
	assert.Equal(t, 0, p.ExitCode())
}

func TestLaunch_WorkingDirectoryIsExecutableDir(t *testing.T) {
	exe := writeScript(t, "pwd-server", `pwd`)

	var buf bytes.Buffer
	l := NewProcessLauncher(NewDiagnosticLog(&buf))

	p, err := l.Launch(context.Background(), exe, nil, StreamPipe)
	require.NoError(t, err)
	waitExit(t, p)
	p.WaitDrained()

	want, err := filepath.EvalSymlinks(exe.Dir)
	require.NoError(t, err)
	got := strings.TrimSpace(strings.TrimPrefix(buf.String(), "[stdout] "))
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, want, gotResolved)
}

func TestLaunch_PassesArgumentsAndEnv(t *testing.T) {
	exe := writeScript(t, "args", `echo "$1|$2|$GENHAT_TEST"`)

	var buf bytes.Buffer
	l := NewProcessLauncher(NewDiagnosticLog(&buf), WithEnv("GENHAT_TEST=yes"))

	p, err := l.Launch(context.Background(), exe, []string{"-m", "/models/a b.gguf"}, StreamPipe)
	require.NoError(t, err)
	waitExit(t, p)
	p.WaitDrained()

	assert.Equal(t, "[stdout] -m|/models/a b.gguf|yes\n", buf.String())
}

func TestLaunch_NonZeroExit(t *testing.T) {
	exe := writeScript(t, "fail", `exit 3`)

	p, err := NewProcessLauncher(nil).Launch(context.Background(), exe, nil, StreamDiscard)
	require.NoError(t, err)

	err = p.Wait(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 3, p.ExitCode())
}

func TestManagedProcess_Terminate(t *testing.T) {
	exe := writeScript(t, "sleeper", `exec sleep 30`)

	p, err := NewProcessLauncher(nil).Launch(context.Background(), exe, nil, StreamPipe)
	require.NoError(t, err)
	assert.False(t, p.Exited())
	assert.Equal(t, -1, p.ExitCode())

	require.NoError(t, p.Terminate())
	waitExit(t, p)
	assert.Equal(t, -1, p.ExitCode(), "killed processes report -1")

	// Terminating a reaped process is a no-op
	assert.NoError(t, p.Terminate())
}

func TestManagedProcess_TerminateKillsProcessGroup(t *testing.T) {
	// The shell forks a grandchild that inherits stdout; the drain only ends
	// once the grandchild is gone too.
	exe := writeScript(t, "forker", `sleep 30 & wait`)

	p, err := NewProcessLauncher(nil).Launch(context.Background(), exe, nil, StreamPipe)
	require.NoError(t, err)
	require.NoError(t, p.Terminate())
	waitExit(t, p)

	drained := make(chan struct{})
	go func() {
		p.WaitDrained()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("grandchild kept the output pipe open")
	}
}

func TestManagedProcess_WaitHonorsContext(t *testing.T) {
	exe := writeScript(t, "sleeper", `exec sleep 30`)

	p, err := NewProcessLauncher(nil).Launch(context.Background(), exe, nil, StreamDiscard)
	require.NoError(t, err)
	defer func() {
		_ = p.Terminate()
		_ = p.Wait(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

func TestLaunch_Failures(t *testing.T) {
	l := NewProcessLauncher(nil)
	missing := &ResolvedExecutable{Path: filepath.Join(t.TempDir(), "nope"), Dir: t.TempDir()}

	_, err := l.Launch(context.Background(), missing, nil, StreamPipe)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeLaunchFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Launch(ctx, missing, nil, StreamPipe)
	assert.True(t, IsErrorCode(err, ErrorCodeLaunchFailed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamPolicyString(t *testing.T) {
	assert.Equal(t, "pipe", StreamPipe.String())
	assert.Equal(t, "discard", StreamDiscard.String())
	assert.Equal(t, "inherit", StreamInherit.String())
	assert.Equal(t, "StreamPolicy(9)", StreamPolicy(9).String())
}
