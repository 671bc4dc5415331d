package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/genhat/genhat-core/pkg/backends"
	"github.com/genhat/genhat-core/pkg/config"
	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/genhat/genhat-core/pkg/models"
	"github.com/genhat/genhat-core/pkg/procmgr"
	"github.com/genhat/genhat-core/pkg/speech"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "genhat"

// Overridden in tests
var (
	openDiagnosticLog = launcher.OpenDiagnosticLog
	newSupervisor     = procmgr.NewSupervisor
)

// DefaultWatchStartInterval is the minimum spacing between backend starts
// triggered by new files in the models directory.
const DefaultWatchStartInterval = 10 * time.Second

// Builder provides a fluent interface for assembling an App.
//
// Usage:
//
//	app, err := app.NewBuilder().
//	    WithConfig(cfg).
//	    WithLogger(logger).
//	    Build()
//
// All builder methods return the builder for method chaining. The first
// invalid setting is reported by Build.
type Builder struct {
	config *config.Config
	fs     afero.Fs
	logger *slog.Logger
	events launcher.EventPublisher
	diag   *launcher.DiagnosticLog

	watchStartInterval time.Duration

	// Test seams; real implementations are used when nil
	launcher procmgr.Launcher
	resolver procmgr.Resolver
	runner   speech.Runner

	err error
}

// NewBuilder creates a Builder with config.Default().
func NewBuilder() *Builder {
	return &Builder{
		config: config.Default(),
		fs:     afero.NewOsFs(),
		logger: slog.Default(),
		events: &launcher.NoopEventPublisher{},

		watchStartInterval: DefaultWatchStartInterval,
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	if b.err != nil {
		return b
	}
	if cfg == nil {
		b.err = fmt.Errorf("config cannot be nil")
		return b
	}
	copied := *cfg
	b.config = &copied
	return b
}

// WithModelsDir sets the configured models directory. GENHAT_MODEL_PATH
// (config model_path) still takes precedence.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if b.err != nil {
		return b
	}
	b.config.Models.Dir = dir
	return b
}

// WithAnchor sets the directory executables are searched from.
func (b *Builder) WithAnchor(anchor string) *Builder {
	if b.err != nil {
		return b
	}
	b.config.Backends.Anchor = anchor
	return b
}

// WithTerminateTimeout bounds how long a switch waits for the old backend.
func (b *Builder) WithTerminateTimeout(d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if d <= 0 {
		b.err = fmt.Errorf("terminate timeout must be positive, got %v", d)
		return b
	}
	b.config.Supervisor.TerminateTimeout = d
	return b
}

// WithAutostart enables or disables loading a model on Start.
func (b *Builder) WithAutostart(enabled bool) *Builder {
	if b.err != nil {
		return b
	}
	b.config.Supervisor.Autostart = enabled
	return b
}

// WithWatchStartInterval sets the minimum spacing between starts triggered
// by the models watcher. Zero disables the limit.
func (b *Builder) WithWatchStartInterval(d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if d < 0 {
		b.err = fmt.Errorf("watch start interval cannot be negative, got %v", d)
		return b
	}
	b.watchStartInterval = d
	return b
}

// WithFs sets the filesystem used for model and executable lookups.
func (b *Builder) WithFs(fs afero.Fs) *Builder {
	if b.err != nil {
		return b
	}
	if fs == nil {
		b.err = fmt.Errorf("filesystem cannot be nil")
		return b
	}
	b.fs = fs
	return b
}

// WithLogger sets the application logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	if b.err != nil {
		return b
	}
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithEventPublisher receives backend lifecycle events.
func (b *Builder) WithEventPublisher(p launcher.EventPublisher) *Builder {
	if b.err != nil {
		return b
	}
	if p != nil {
		b.events = p
	}
	return b
}

// WithDiagnosticLog uses d instead of opening diagnostics.log_path.
func (b *Builder) WithDiagnosticLog(d *launcher.DiagnosticLog) *Builder {
	if b.err != nil {
		return b
	}
	b.diag = d
	return b
}

// WithLauncher replaces the process launcher for the text-generation backend.
func (b *Builder) WithLauncher(l procmgr.Launcher) *Builder {
	if b.err != nil {
		return b
	}
	b.launcher = l
	return b
}

// WithResolver replaces executable resolution for both backends.
func (b *Builder) WithResolver(r procmgr.Resolver) *Builder {
	if b.err != nil {
		return b
	}
	b.resolver = r
	return b
}

// WithSpeechRunner replaces the one-shot invoker for speech.
func (b *Builder) WithSpeechRunner(r speech.Runner) *Builder {
	if b.err != nil {
		return b
	}
	b.runner = r
	return b
}

// Config returns the configuration the builder will use.
func (b *Builder) Config() *config.Config {
	return b.config
}

// Build assembles the App. Nothing is launched until Start.
func (b *Builder) Build() (*App, error) {
	if b.err != nil {
		return nil, fmt.Errorf("builder validation failed: %w", b.err)
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	catalog, err := backends.LoadCatalog(b.fs, cfg.Backends.Catalog)
	if err != nil {
		return nil, launcher.ErrInvalidConfiguration("backends.catalog", cfg.Backends.Catalog, "catalog could not be loaded").WithCause(err)
	}
	textDesc, err := backends.Lookup(catalog, backends.TextGeneration)
	if err != nil {
		return nil, err
	}
	speechDesc, err := backends.Lookup(catalog, backends.SpeechSynthesis)
	if err != nil {
		return nil, err
	}

	resolver := b.resolver
	if resolver == nil {
		opts := []launcher.LocatorOption{
			launcher.WithFs(b.fs),
			launcher.WithLocatorLogger(b.logger),
		}
		if cfg.Backends.Anchor != "" {
			opts = append(opts, launcher.WithAnchor(cfg.Backends.Anchor))
		}
		locator, err := launcher.NewLocator(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create locator: %w", err)
		}
		resolver = locator
	}

	diag := b.diag
	if diag == nil {
		diag, err = openDiagnosticLog(cfg.Diagnostics.LogPath)
		if err != nil {
			b.logger.Warn("diagnostic log unavailable, backend output will be discarded",
				"path", cfg.Diagnostics.LogPath, "error", err)
		}
	}
	// A log opened here is closed again if assembly fails
	closeOwned := func() {
		if b.diag == nil {
			_ = diag.Close()
		}
	}

	supervisorMetrics := procmgr.NewPrometheusMetricsCollector(MetricsNamespace)
	invocationMetrics, err := launcher.NewPrometheusInvocationMetrics(MetricsNamespace, supervisorMetrics.Registry())
	if err != nil {
		closeOwned()
		return nil, fmt.Errorf("failed to register invocation metrics: %w", err)
	}

	library := models.NewLibrary(b.fs, models.ResolveDir(b.fs, cfg.ModelPath, cfg.Models.Dir))

	supOpts := []procmgr.Option{
		procmgr.WithDescriptor(textDesc),
		procmgr.WithResolver(resolver),
		procmgr.WithArgs(backends.ServerArgs),
		procmgr.WithTerminateTimeout(cfg.Supervisor.TerminateTimeout),
		procmgr.WithFs(b.fs),
		procmgr.WithDiagnosticLog(diag),
		procmgr.WithEventPublisher(b.events),
		procmgr.WithMetricsCollector(supervisorMetrics),
		procmgr.WithLogger(b.logger),
	}
	if b.launcher != nil {
		supOpts = append(supOpts, procmgr.WithLauncher(b.launcher))
	} else {
		supOpts = append(supOpts, procmgr.WithProcessLauncher(
			launcher.NewProcessLauncher(diag, launcher.WithLauncherLogger(b.logger))))
	}
	supervisor, err := newSupervisor(supOpts...)
	if err != nil {
		closeOwned()
		return nil, err
	}

	runner := b.runner
	if runner == nil {
		runner = launcher.NewInvoker(diag,
			launcher.WithInvokerFs(b.fs),
			launcher.WithInvocationMetrics(invocationMetrics),
			launcher.WithInvokerLogger(b.logger))
	}
	synth, err := speech.New(speechDesc, resolver, runner, library, speech.WithLogger(b.logger))
	if err != nil {
		closeOwned()
		return nil, err
	}

	watchStarts := rate.NewLimiter(rate.Inf, 1)
	if b.watchStartInterval > 0 {
		watchStarts = rate.NewLimiter(rate.Every(b.watchStartInterval), 1)
	}

	return &App{
		config:     *cfg,
		catalog:    catalog,
		resolver:   resolver,
		library:    library,
		diag:       diag,
		supervisor: supervisor,
		speech:     synth,
		metrics:    supervisorMetrics,
		logger:     b.logger,

		watchStarts: watchStarts,
	}, nil
}

// MustBuild builds the App and panics on error.
func (b *Builder) MustBuild() *App {
	a, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build genhat app: %v", err))
	}
	return a
}
