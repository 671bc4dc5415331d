package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/genhat/genhat-core/pkg/launcher"

// invocationWaitDelay bounds how long Run waits for grandchildren holding
// the output pipes after the process itself has exited.
const invocationWaitDelay = 5 * time.Second

// Invocation describes a run-to-completion backend call.
type Invocation struct {
	Executable *ResolvedExecutable
	Args       []string

	// Files that must exist before the process is spawned
	RequiredArtifacts []string

	// File the process must have produced for the run to count as success
	OutputPath string
}

// InvocationResult is the outcome of a successful invocation.
type InvocationResult struct {
	ExitCode     int
	Stdout       string
	Stderr       string
	ArtifactPath string
	Duration     time.Duration
}

// Invoker runs transient backends to completion. It keeps no state
// between runs; concurrent calls are independent.
type Invoker struct {
	fs      afero.Fs
	diag    *DiagnosticLog
	metrics InvocationMetrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// InvokerOption configures an Invoker
type InvokerOption func(*Invoker)

// WithInvokerFs sets the filesystem used for artifact checks
func WithInvokerFs(fs afero.Fs) InvokerOption {
	return func(i *Invoker) {
		i.fs = fs
	}
}

// WithInvocationMetrics sets the metrics collector
func WithInvocationMetrics(m InvocationMetrics) InvokerOption {
	return func(i *Invoker) {
		i.metrics = m
	}
}

// WithInvokerLogger sets the logger
func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// NewInvoker creates an invoker that records runs in diag.
func NewInvoker(diag *DiagnosticLog, opts ...InvokerOption) *Invoker {
	if diag == nil {
		diag = NewDiagnosticLog(io.Discard)
	}
	i := &Invoker{
		fs:      afero.NewOsFs(),
		diag:    diag,
		metrics: NewNoopInvocationMetrics(),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run validates the required artifacts, runs the executable in its own
// directory and waits for it. A non-zero exit, or a zero exit without the
// declared output file, yields INVOCATION_FAILED carrying both streams.
func (i *Invoker) Run(ctx context.Context, inv Invocation) (*InvocationResult, error) {
	if inv.Executable == nil {
		return nil, ErrInvalidConfiguration("executable", nil, "invocation has no executable")
	}
	exe := inv.Executable

	ctx, span := i.tracer.Start(ctx, "launcher.invoke",
		trace.WithAttributes(
			attribute.String("backend", exe.Backend),
			attribute.String("executable", exe.Path),
		))
	defer span.End()

	start := time.Now()
	result, err := i.run(ctx, inv)
	duration := time.Since(start)

	i.metrics.InvocationCompleted(exe.Backend, duration, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(GetErrorCode(err)))
		i.logger.Warn("invocation failed", "backend", exe.Backend, "error", err)
		return nil, err
	}

	result.Duration = duration
	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
	return result, nil
}

func (i *Invoker) run(ctx context.Context, inv Invocation) (*InvocationResult, error) {
	exe := inv.Executable

	for _, artifact := range inv.RequiredArtifacts {
		if !i.isFile(artifact) {
			return nil, ErrMissingArtifact(artifact).WithContext("backend", exe.Backend)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, exe.Path, inv.Args...)
	cmd.Dir = exe.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcess(cmd)
	cmd.Cancel = func() error { return killProcess(cmd) }
	cmd.WaitDelay = invocationWaitDelay

	session := i.diag.Session(exe.Backend)
	i.diag.Record("invoking", "session", session, "exe", exe.Path, "args", fmt.Sprint(inv.Args))

	if err := cmd.Start(); err != nil {
		i.diag.Record("spawn failed", "session", session, "error", err)
		return nil, ErrLaunchFailed(exe.Path, err)
	}
	waitErr := cmd.Wait()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	i.diag.Record("exited", "session", session, "pid", cmd.Process.Pid, "exit_code", exitCode)
	Drain(io.NopCloser(bytes.NewReader(stdout.Bytes())), "stdout", i.diag)
	Drain(io.NopCloser(bytes.NewReader(stderr.Bytes())), "stderr", i.diag)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ErrInvocationFailed(exe.Path, exitCode, stdout.String(), stderr.String()).
			WithCause(ctxErr)
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// I/O failure after the process exited, e.g. WaitDelay elapsed
		return nil, ErrInvocationFailed(exe.Path, exitCode, stdout.String(), stderr.String()).
			WithCause(waitErr)
	}
	if exitCode != 0 {
		return nil, ErrInvocationFailed(exe.Path, exitCode, stdout.String(), stderr.String())
	}

	if inv.OutputPath != "" && !i.isFile(inv.OutputPath) {
		return nil, ErrInvocationFailed(exe.Path, exitCode, stdout.String(), stderr.String()).
			WithContext("artifact", inv.OutputPath).
			WithSuggestion("The process exited cleanly but did not write its output file")
	}

	return &InvocationResult{
		ExitCode:     exitCode,
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
		ArtifactPath: inv.OutputPath,
	}, nil
}

func (i *Invoker) isFile(path string) bool {
	info, err := i.fs.Stat(path)
	return err == nil && !info.IsDir()
}
