// Package procmgr supervises the long-running inference backend: a single
// slot that is either Idle or Running one process for one model.
package procmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"
)

// State represents the lifecycle state of the supervised backend slot
type State int

const (
	// StateIdle - no process owned
	StateIdle State = iota
	// StateRunning - one process owned, bound to a model
	StateRunning
	// StateClosed - shut down; further starts are rejected
	StateClosed
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Process is the handle the Supervisor owns for a live backend
type Process interface {
	PID() int
	// Terminate sends a best-effort kill signal and does not block
	Terminate() error
	// Wait blocks until the process is reaped or ctx is done
	Wait(ctx context.Context) error
	// Done is closed once the process has been reaped
	Done() <-chan struct{}
	ExitCode() int
}

// Launcher spawns a resolved executable
type Launcher interface {
	Launch(ctx context.Context, exe *launcher.ResolvedExecutable, args []string, policy launcher.StreamPolicy) (Process, error)
}

// Resolver finds the executable for a backend descriptor
type Resolver interface {
	Resolve(desc *launcher.BackendDescriptor) (*launcher.ResolvedExecutable, error)
}

// ArgsFunc builds the backend's argument list for a model file
type ArgsFunc func(modelPath string) []string

// Status is a point-in-time view of the Supervisor
type Status struct {
	State      State
	Model      string
	ModelPath  string
	Executable string
	PID        int
	StartedAt  time.Time
}

// Running reports whether a backend process is owned
func (s Status) Running() bool {
	return s.State == StateRunning
}

// slot is the single owned process and what it was started for
type slot struct {
	model     string
	modelPath string
	exe       *launcher.ResolvedExecutable
	proc      Process
	startedAt time.Time
	// stopping is set once the Supervisor has asked the process to exit
	stopping bool
}

// Supervisor owns at most one live long-running backend process
type Supervisor struct {
	mu      sync.Mutex
	current *slot
	closed  bool

	// Configuration
	descriptor       *launcher.BackendDescriptor
	resolver         Resolver
	launcher         Launcher
	args             ArgsFunc
	streams          launcher.StreamPolicy
	terminateTimeout time.Duration
	fs               afero.Fs

	// Observability
	diag    *launcher.DiagnosticLog
	events  launcher.EventPublisher
	metrics MetricsCollector
	logger  *slog.Logger
	tracer  trace.Tracer

	// Crash watchers
	wg sync.WaitGroup
}
