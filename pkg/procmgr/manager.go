package procmgr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/genhat/genhat-core/pkg/procmgr"

// DefaultTerminateTimeout is how long a transition waits for a terminated
// backend to be reaped.
const DefaultTerminateTimeout = 10 * time.Second

// NewSupervisor creates an Idle supervisor. Descriptor, resolver, launcher
// and argument builder are required.
func NewSupervisor(opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		streams:          launcher.StreamPipe,
		terminateTimeout: DefaultTerminateTimeout,
		fs:               afero.NewOsFs(),
		diag:             launcher.NewDiagnosticLog(io.Discard),
		events:           &launcher.NoopEventPublisher{},
		metrics:          NewNoopMetricsCollector(),
		logger:           slog.Default(),
		tracer:           otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(s)
	}

	switch {
	case s.descriptor == nil:
		return nil, launcher.ErrInvalidConfiguration("descriptor", nil, "supervisor requires a backend descriptor")
	case s.resolver == nil:
		return nil, launcher.ErrInvalidConfiguration("resolver", nil, "supervisor requires a resolver")
	case s.launcher == nil:
		return nil, launcher.ErrInvalidConfiguration("launcher", nil, "supervisor requires a launcher")
	case s.args == nil:
		return nil, launcher.ErrInvalidConfiguration("args", nil, "supervisor requires an argument builder")
	case s.terminateTimeout <= 0:
		return nil, launcher.ErrInvalidConfiguration("terminate_timeout", s.terminateTimeout, "must be positive")
	}

	return s, nil
}

// StartOrSwitch launches the backend for modelPath, replacing any running
// backend. The model file is checked before anything else; a missing file
// leaves the Supervisor untouched. The previous process is terminated and
// reaped before the new one is launched. If the launch fails the
// Supervisor is left Idle.
func (s *Supervisor) StartOrSwitch(ctx context.Context, modelPath string) (err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.start_or_switch",
		trace.WithAttributes(attribute.String("model_path", modelPath)))
	start := time.Now()
	defer func() {
		s.metrics.OperationDuration("start_or_switch", time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(launcher.GetErrorCode(err)))
		}
		span.End()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return launcher.ErrSupervisorShutdown()
	}
	return s.startLocked(ctx, span, modelPath)
}

// StartIfIdle launches the backend for modelPath only when nothing is
// running. The check and the launch happen under one lock, so a concurrent
// StartOrSwitch is never replaced. started is false when a backend was
// already running.
func (s *Supervisor) StartIfIdle(ctx context.Context, modelPath string) (started bool, err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.start_if_idle",
		trace.WithAttributes(attribute.String("model_path", modelPath)))
	start := time.Now()
	defer func() {
		s.metrics.OperationDuration("start_if_idle", time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(launcher.GetErrorCode(err)))
		}
		span.End()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, launcher.ErrSupervisorShutdown()
	}
	if s.current != nil {
		return false, nil
	}
	if err := s.startLocked(ctx, span, modelPath); err != nil {
		return false, err
	}
	return true, nil
}

// startLocked checks the model, resolves, replaces any running process and
// launches. Requires s.mu.
func (s *Supervisor) startLocked(ctx context.Context, span trace.Span, modelPath string) error {
	if !s.isFile(modelPath) {
		s.metrics.ProcessError("model_not_found")
		return launcher.ErrModelNotFound(modelPath)
	}

	model := filepath.Base(modelPath)
	s.publish(ctx, launcher.EventStarting, "starting backend", map[string]string{"model": model})

	// Resolve before touching the running process so a missing executable
	// does not take down a working backend.
	exe, err := s.resolver.Resolve(s.descriptor)
	if err != nil {
		s.metrics.ProcessError("resolution_failed")
		s.diag.Record("resolution failed", "backend", s.descriptor.Name, "model", modelPath, "error", err)
		s.publish(ctx, launcher.EventFailed, "backend executable not found", map[string]string{
			"model": model, "error": err.Error(),
		})
		return err
	}

	if s.current != nil {
		s.stopLocked(ctx, "switch")
	}

	args := s.args(modelPath)
	session := s.diag.Session(processName(exe.Path))
	s.diag.Record("launching", "session", session, "exe", exe.Path, "model", modelPath, "args", strings.Join(args, " "))

	proc, err := s.launcher.Launch(ctx, exe, args, s.streams)
	if err != nil {
		s.metrics.ProcessError("launch_failed")
		s.diag.Record("launch failed", "session", session, "exe", exe.Path, "error", err)
		s.logger.Error("failed to launch backend", "executable", exe.Path, "model", model, "error", err)
		s.publish(ctx, launcher.EventFailed, "backend failed to launch", map[string]string{
			"model": model, "error": err.Error(),
		})
		return err
	}

	cur := &slot{
		model:     model,
		modelPath: modelPath,
		exe:       exe,
		proc:      proc,
		startedAt: time.Now(),
	}
	s.current = cur
	s.transition(StateIdle, StateRunning)
	s.metrics.ProcessLaunched(model)

	s.diag.Record("spawned", "session", session, "pid", proc.PID(), "exe", exe.Path, "model", modelPath)
	s.logger.Info("backend running", "executable", exe.Path, "model", model, "pid", proc.PID())
	span.SetAttributes(attribute.Int("pid", proc.PID()))
	s.publish(ctx, launcher.EventRunning, "backend running", map[string]string{
		"model": model, "pid": strconv.Itoa(proc.PID()),
	})

	s.wg.Add(1)
	go s.watch(cur)

	return nil
}

// Stop terminates and reaps the running backend. Stopping an Idle
// Supervisor is a no-op.
func (s *Supervisor) Stop(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.stop")
	start := time.Now()
	defer func() {
		s.metrics.OperationDuration("stop", time.Since(start), err)
		span.End()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.stopLocked(ctx, "stop")
	}
	return nil
}

// Shutdown stops the backend and closes the Supervisor; later starts fail
// with SUPERVISOR_SHUTDOWN. Calling it again is a no-op. It waits (bounded
// by ctx) for crash watchers to finish.
func (s *Supervisor) Shutdown(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.shutdown")
	start := time.Now()
	defer func() {
		s.metrics.OperationDuration("shutdown", time.Since(start), err)
		span.End()
	}()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.current != nil {
		s.stopLocked(ctx, "shutdown")
	}
	s.closed = true
	s.transition(StateIdle, StateClosed)
	s.mu.Unlock()

	s.logger.Info("supervisor shut down")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for process watchers: %w", ctx.Err())
	}
}

// Status returns a snapshot of the Supervisor
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		if s.closed {
			return Status{State: StateClosed}
		}
		return Status{State: StateIdle}
	}

	return Status{
		State:      StateRunning,
		Model:      s.current.model,
		ModelPath:  s.current.modelPath,
		Executable: s.current.exe.Path,
		PID:        s.current.proc.PID(),
		StartedAt:  s.current.startedAt,
	}
}

// stopLocked terminates and reaps the current process. Termination errors
// and reap timeouts are logged, never returned. Requires s.mu.
func (s *Supervisor) stopLocked(ctx context.Context, reason string) {
	cur := s.current
	cur.stopping = true
	pid := cur.proc.PID()

	s.diag.Record("terminating", "pid", pid, "exe", cur.exe.Path, "model", cur.modelPath, "reason", reason)

	start := time.Now()
	if err := cur.proc.Terminate(); err != nil {
		s.metrics.ProcessError("terminate_failed")
		s.diag.Record("terminate failed", "pid", pid, "error", err)
		s.logger.Warn("failed to terminate backend", "pid", pid, "error", err)
	}

	// Reaping must not be skipped because the caller's ctx was cancelled
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.terminateTimeout)
	defer cancel()

	select {
	case <-cur.proc.Done():
		s.metrics.TerminationDuration(time.Since(start))
		s.diag.Record("terminated", "pid", pid, "exit_code", cur.proc.ExitCode())
	case <-waitCtx.Done():
		s.metrics.ProcessError("terminate_timeout")
		s.diag.Record("terminate timed out", "pid", pid, "timeout", s.terminateTimeout)
		s.logger.Warn("backend did not exit in time, proceeding",
			"pid", pid, "timeout", s.terminateTimeout)
	}

	s.current = nil
	s.transition(StateRunning, StateIdle)
	s.logger.Info("backend stopped", "model", cur.model, "pid", pid, "reason", reason)
	s.publish(ctx, launcher.EventStopped, "backend stopped", map[string]string{
		"model": cur.model, "pid": strconv.Itoa(pid), "reason": reason,
	})
}

// watch clears the slot if its process exits without being asked to.
func (s *Supervisor) watch(cur *slot) {
	defer s.wg.Done()

	<-cur.proc.Done()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != cur || cur.stopping {
		return
	}

	exitCode := cur.proc.ExitCode()
	s.current = nil
	s.transition(StateRunning, StateIdle)
	s.metrics.ProcessCrashed(cur.model)

	s.diag.Record("exited unexpectedly", "pid", cur.proc.PID(), "exe", cur.exe.Path,
		"model", cur.modelPath, "exit_code", exitCode)
	s.logger.Warn("backend exited unexpectedly",
		"model", cur.model, "pid", cur.proc.PID(), "exit_code", exitCode)
	s.publish(context.Background(), launcher.EventCrashed, "backend exited unexpectedly", map[string]string{
		"model": cur.model, "pid": strconv.Itoa(cur.proc.PID()), "exit_code": strconv.Itoa(exitCode),
	})
}

func (s *Supervisor) transition(from, to State) {
	s.metrics.StateTransition(from, to)
}

func (s *Supervisor) publish(ctx context.Context, eventType, message string, metadata map[string]string) {
	if err := s.events.ReportLifecycleEvent(ctx, eventType, message, metadata); err != nil {
		s.logger.Debug("failed to publish lifecycle event", "event", eventType, "error", err)
	}
}

func (s *Supervisor) isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := s.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// processName is the executable's base name without extension
func processName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
