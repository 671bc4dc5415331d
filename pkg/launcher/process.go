package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// StreamPolicy selects what happens to a child's stdout and stderr.
type StreamPolicy int

const (
	// StreamPipe drains both streams into the diagnostic log
	StreamPipe StreamPolicy = iota
	// StreamDiscard sends both streams to the null device
	StreamDiscard
	// StreamInherit shares the parent's stdout and stderr
	StreamInherit
)

func (p StreamPolicy) String() string {
	switch p {
	case StreamPipe:
		return "pipe"
	case StreamDiscard:
		return "discard"
	case StreamInherit:
		return "inherit"
	default:
		return fmt.Sprintf("StreamPolicy(%d)", int(p))
	}
}

// ManagedProcess is a running (or reaped) child process. It has exactly
// one owner, which is responsible for terminating and reaping it.
type ManagedProcess struct {
	cmd        *exec.Cmd
	executable string
	startedAt  time.Time

	done     chan struct{}
	exitCode int
	waitErr  error
	drains   sync.WaitGroup
}

// PID returns the OS process id
func (p *ManagedProcess) PID() int {
	return p.cmd.Process.Pid
}

// Executable returns the path that was spawned
func (p *ManagedProcess) Executable() string {
	return p.executable
}

// StartedAt returns the spawn time
func (p *ManagedProcess) StartedAt() time.Time {
	return p.startedAt
}

// Done is closed once the process has exited and been reaped
func (p *ManagedProcess) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has been reaped
func (p *ManagedProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit status after reaping, or -1 while running or
// when the process was killed by a signal.
func (p *ManagedProcess) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	return p.exitCode
}

// Terminate sends a kill signal without waiting. Killing a process that has
// already exited is not an error.
func (p *ManagedProcess) Terminate() error {
	if p.Exited() {
		return nil
	}
	err := killProcess(p.cmd)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Wait blocks until the process is reaped or ctx is done. The returned
// error is the process's exit error (nil on a clean exit) or ctx's error.
func (p *ManagedProcess) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitDrained blocks until the output drains have finished. Drains end when
// every holder of the stream's write end has exited, which may be later
// than the process itself.
func (p *ManagedProcess) WaitDrained() {
	p.drains.Wait()
}

func (p *ManagedProcess) reap() {
	err := p.cmd.Wait()
	p.waitErr = err
	p.exitCode = -1
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	close(p.done)
}

// ProcessLauncher spawns backend executables.
type ProcessLauncher struct {
	diag   *DiagnosticLog
	logger *slog.Logger
	env    []string
}

// ProcessLauncherOption configures a ProcessLauncher
type ProcessLauncherOption func(*ProcessLauncher)

// WithLauncherLogger sets the logger
func WithLauncherLogger(logger *slog.Logger) ProcessLauncherOption {
	return func(l *ProcessLauncher) {
		l.logger = logger
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment
func WithEnv(env ...string) ProcessLauncherOption {
	return func(l *ProcessLauncher) {
		l.env = append(l.env, env...)
	}
}

// NewProcessLauncher creates a launcher writing child output to diag.
func NewProcessLauncher(diag *DiagnosticLog, opts ...ProcessLauncherOption) *ProcessLauncher {
	if diag == nil {
		diag = NewDiagnosticLog(io.Discard)
	}
	l := &ProcessLauncher{
		diag:   diag,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts exe with args in exe's directory. With StreamPipe both
// streams are already draining into the diagnostic log when Launch
// returns. ctx only guards the spawn; the process outlives it.
func (l *ProcessLauncher) Launch(ctx context.Context, exe *ResolvedExecutable, args []string, policy StreamPolicy) (*ManagedProcess, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrLaunchFailed(exe.Path, err)
	}

	cmd := exec.Command(exe.Path, args...)
	cmd.Dir = exe.Dir
	if len(l.env) > 0 {
		cmd.Env = append(os.Environ(), l.env...)
	}
	configureProcess(cmd)

	// os.Pipe instead of cmd.StdoutPipe so that reaping does not close the
	// read ends under the drains.
	var readers []*os.File
	var writers []*os.File
	closeAll := func(files []*os.File) {
		for _, f := range files {
			_ = f.Close()
		}
	}

	switch policy {
	case StreamPipe:
		for range 2 {
			r, w, err := os.Pipe()
			if err != nil {
				closeAll(readers)
				closeAll(writers)
				return nil, ErrLaunchFailed(exe.Path, fmt.Errorf("create pipe: %w", err))
			}
			readers = append(readers, r)
			writers = append(writers, w)
		}
		cmd.Stdout = writers[0]
		cmd.Stderr = writers[1]
	case StreamInherit:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case StreamDiscard:
	}

	if err := cmd.Start(); err != nil {
		closeAll(readers)
		closeAll(writers)
		return nil, ErrLaunchFailed(exe.Path, err).
			WithContext("dir", exe.Dir)
	}
	// The child holds its own copies
	closeAll(writers)

	p := &ManagedProcess{
		cmd:        cmd,
		executable: exe.Path,
		startedAt:  time.Now(),
		done:       make(chan struct{}),
	}

	for i, tag := range []string{"stdout", "stderr"} {
		if i >= len(readers) {
			break
		}
		p.drains.Add(1)
		go func(r io.ReadCloser, tag string) {
			defer p.drains.Done()
			Drain(r, tag, l.diag)
		}(readers[i], tag)
	}

	go p.reap()

	l.logger.Debug("spawned process",
		"executable", exe.Path, "pid", p.PID(), "dir", exe.Dir, "streams", policy.String())

	return p, nil
}
