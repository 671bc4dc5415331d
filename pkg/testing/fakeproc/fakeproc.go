// Package fakeproc provides in-memory stand-ins for backend processes so
// supervisor behavior can be tested without spawning anything.
package fakeproc

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/genhat/genhat-core/pkg/procmgr"
)

// Process is a fake backend process. It exits when terminated unless its
// launcher was configured to hang.
type Process struct {
	pid      int
	args     []string
	launcher *Launcher

	mu             sync.Mutex
	done           chan struct{}
	exitCode       int
	exited         bool
	terminateCalls int
	hang           bool
	terminateErr   error
}

// PID returns the fake process id
func (p *Process) PID() int {
	return p.pid
}

// Args returns the arguments the process was launched with
func (p *Process) Args() []string {
	return p.args
}

// Terminate records the signal and, unless hanging, exits the process
func (p *Process) Terminate() error {
	p.mu.Lock()
	p.terminateCalls++
	hang := p.hang
	err := p.terminateErr
	p.mu.Unlock()

	p.launcher.record(fmt.Sprintf("terminate:%d", p.pid))
	if !hang {
		p.Exit(-1)
	}
	return err
}

// Exit makes the process exit with code, as if it crashed or finished
func (p *Process) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exited {
		return
	}
	p.exited = true
	p.exitCode = code
	close(p.done)
}

// Wait blocks until the process exits or ctx is done
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the process exits
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code, or -1 while running
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.exited {
		return -1
	}
	return p.exitCode
}

// Alive reports whether the process has not exited
func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

// TerminateCalls returns how many termination signals were sent
func (p *Process) TerminateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminateCalls
}

// Launcher is a fake procmgr.Launcher that records every launch and
// termination in order and tracks how many processes were alive at once.
type Launcher struct {
	mu        sync.Mutex
	nextPID   int
	processes []*Process
	events    []string
	maxAlive  int

	launchErr    error
	hang         bool
	terminateErr error
}

// NewLauncher creates a fake launcher
func NewLauncher() *Launcher {
	return &Launcher{nextPID: 1000}
}

// FailLaunches makes subsequent launches fail with err (nil to clear)
func (l *Launcher) FailLaunches(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErr = err
}

// HangOnTerminate makes subsequently launched processes ignore termination
func (l *Launcher) HangOnTerminate(hang bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hang = hang
}

// FailTerminations makes Terminate return err (the process still exits)
func (l *Launcher) FailTerminations(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminateErr = err
}

// Launch creates a fake process
func (l *Launcher) Launch(ctx context.Context, exe *launcher.ResolvedExecutable, args []string, policy launcher.StreamPolicy) (procmgr.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.launchErr != nil {
		l.events = append(l.events, "launch-failed")
		return nil, launcher.ErrLaunchFailed(exe.Path, l.launchErr)
	}

	l.nextPID++
	p := &Process{
		pid:          l.nextPID,
		args:         append([]string(nil), args...),
		launcher:     l,
		done:         make(chan struct{}),
		hang:         l.hang,
		terminateErr: l.terminateErr,
	}
	l.processes = append(l.processes, p)
	l.events = append(l.events, fmt.Sprintf("launch:%d", p.pid))

	if alive := l.aliveLocked(); alive > l.maxAlive {
		l.maxAlive = alive
	}
	return p, nil
}

func (l *Launcher) record(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *Launcher) aliveLocked() int {
	n := 0
	for _, p := range l.processes {
		if p.Alive() {
			n++
		}
	}
	return n
}

// Alive returns the number of live processes
func (l *Launcher) Alive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aliveLocked()
}

// MaxAlive returns the highest number of processes alive at once
func (l *Launcher) MaxAlive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxAlive
}

// Events returns launches and terminations in the order they happened,
// formatted as "launch:<pid>" and "terminate:<pid>"
func (l *Launcher) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// Processes returns every process launched so far
func (l *Launcher) Processes() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Process(nil), l.processes...)
}

// Last returns the most recently launched process, or nil
func (l *Launcher) Last() *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.processes) == 0 {
		return nil
	}
	return l.processes[len(l.processes)-1]
}

// Resolver is a fake procmgr.Resolver returning a fixed result
type Resolver struct {
	mu    sync.Mutex
	Exe   *launcher.ResolvedExecutable
	Err   error
	calls int
}

// NewResolver returns a resolver that always resolves to path
func NewResolver(path string) *Resolver {
	return &Resolver{Exe: &launcher.ResolvedExecutable{
		Backend: "text-generation",
		Path:    path,
		Dir:     filepath.Dir(path),
	}}
}

// Resolve returns the configured executable or error
func (r *Resolver) Resolve(desc *launcher.BackendDescriptor) (*launcher.ResolvedExecutable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Exe, nil
}

// SetErr changes the error returned by Resolve
func (r *Resolver) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}

// Calls returns how many times Resolve was called
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var (
	_ procmgr.Launcher = (*Launcher)(nil)
	_ procmgr.Resolver = (*Resolver)(nil)
	_ procmgr.Process  = (*Process)(nil)
)
