package procmgr

import (
	"context"
	"log/slog"
	"time"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/afero"
)

// Option configures the Supervisor
type Option func(*Supervisor)

// WithDescriptor sets the backend the Supervisor launches
func WithDescriptor(desc *launcher.BackendDescriptor) Option {
	return func(s *Supervisor) {
		s.descriptor = desc
	}
}

// WithResolver sets the executable resolver
func WithResolver(r Resolver) Option {
	return func(s *Supervisor) {
		s.resolver = r
	}
}

// WithLauncher sets the process launcher
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		s.launcher = l
	}
}

// WithProcessLauncher adapts a launcher.ProcessLauncher
func WithProcessLauncher(l *launcher.ProcessLauncher) Option {
	return WithLauncher(&processLauncherAdapter{l: l})
}

// WithArgs sets the argument builder
func WithArgs(fn ArgsFunc) Option {
	return func(s *Supervisor) {
		s.args = fn
	}
}

// WithStreamPolicy sets how child output is handled
func WithStreamPolicy(p launcher.StreamPolicy) Option {
	return func(s *Supervisor) {
		s.streams = p
	}
}

// WithTerminateTimeout bounds how long a transition waits for the old
// process to be reaped before proceeding anyway
func WithTerminateTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.terminateTimeout = d
	}
}

// WithFs sets the filesystem used to check model paths
func WithFs(fs afero.Fs) Option {
	return func(s *Supervisor) {
		s.fs = fs
	}
}

// WithDiagnosticLog sets the diagnostic log
func WithDiagnosticLog(d *launcher.DiagnosticLog) Option {
	return func(s *Supervisor) {
		s.diag = d
	}
}

// WithEventPublisher sets the lifecycle event publisher
func WithEventPublisher(p launcher.EventPublisher) Option {
	return func(s *Supervisor) {
		s.events = p
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(s *Supervisor) {
		s.metrics = mc
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

type processLauncherAdapter struct {
	l *launcher.ProcessLauncher
}

func (a *processLauncherAdapter) Launch(ctx context.Context, exe *launcher.ResolvedExecutable, args []string, policy launcher.StreamPolicy) (Process, error) {
	p, err := a.l.Launch(ctx, exe, args, policy)
	if err != nil {
		return nil, err
	}
	return p, nil
}
