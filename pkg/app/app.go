// Package app is the facade a desktop shell or CLI drives: it owns the
// text-generation Supervisor, the speech Synthesizer and the models
// library, and applies the startup policy.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/genhat/genhat-core/pkg/backends"
	"github.com/genhat/genhat-core/pkg/config"
	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/genhat/genhat-core/pkg/models"
	"github.com/genhat/genhat-core/pkg/procmgr"
	"github.com/genhat/genhat-core/pkg/speech"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// App wires the inference backends together.
type App struct {
	config     config.Config
	catalog    *launcher.Catalog
	resolver   procmgr.Resolver
	library    *models.Library
	diag       *launcher.DiagnosticLog
	supervisor *procmgr.Supervisor
	speech     *speech.Synthesizer
	metrics    *procmgr.PrometheusMetricsCollector
	logger     *slog.Logger

	// Limits starts triggered by the models watcher so a model that
	// crashes on load is not relaunched on every file event
	watchStarts *rate.Limiter

	shutdownOnce sync.Once
	shutdownErr  error
}

// Start applies the startup policy: with autostart enabled, launch
// DefaultModelName if present, else the first listed model. Startup
// failures are logged and leave the backend Idle; only a closed App
// returns an error.
func (a *App) Start(ctx context.Context) error {
	if a.supervisor.Status().State == procmgr.StateClosed {
		return launcher.ErrSupervisorShutdown()
	}
	if !a.config.Supervisor.Autostart {
		a.logger.Info("autostart disabled, backend idle")
		return nil
	}

	model, err := a.library.Default()
	if err != nil {
		if launcher.IsErrorCode(err, launcher.ErrorCodeNoModelsFound) {
			msg := fmt.Sprintf("No models found in %s, server not started automatically.", a.library.Dir())
			a.diag.Record(msg)
			a.logger.Info(msg, "models_dir", a.library.Dir())
			return nil
		}
		a.logger.Warn("failed to list models", "models_dir", a.library.Dir(), "error", err)
		return nil
	}

	if err := a.supervisor.StartOrSwitch(ctx, model.Path); err != nil {
		a.diag.Record("auto-start failed", "model", model.Path, "error", err)
		a.logger.Warn("auto-start failed, backend idle", "model", model.Name, "error", err)
		return nil
	}
	return nil
}

// ListModels returns the text-generation models.
func (a *App) ListModels() ([]models.Model, error) {
	return a.library.List()
}

// SpeechAssets returns the selectable speech models.
func (a *App) SpeechAssets() ([]models.Model, error) {
	return a.library.SpeechAssets()
}

// ModelsDir returns the resolved models directory.
func (a *App) ModelsDir() string {
	return a.library.Dir()
}

// SwitchModel runs the text-generation backend on modelPath.
func (a *App) SwitchModel(ctx context.Context, modelPath string) error {
	return a.supervisor.StartOrSwitch(ctx, modelPath)
}

// StopServer stops the text-generation backend if it is running.
func (a *App) StopServer(ctx context.Context) error {
	return a.supervisor.Stop(ctx)
}

// Speak synthesizes speech and returns the WAV path.
func (a *App) Speak(ctx context.Context, req speech.Request) (*speech.Result, error) {
	return a.speech.Speak(ctx, req)
}

// Status reports the text-generation backend state.
func (a *App) Status() procmgr.Status {
	return a.supervisor.Status()
}

// Resolve locates a backend's executable by catalog name.
func (a *App) Resolve(backend string) (*launcher.ResolvedExecutable, error) {
	desc, err := backends.Lookup(a.catalog, backend)
	if err != nil {
		return nil, err
	}
	return a.resolver.Resolve(desc)
}

// Backends lists the catalog's backend names.
func (a *App) Backends() []string {
	return a.catalog.Names()
}

// Gatherer exposes the App's metrics for a /metrics endpoint.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.metrics.Registry()
}

// DiagnosticLogPath returns where backend output is recorded.
func (a *App) DiagnosticLogPath() string {
	return a.diag.Path()
}

// WatchModels follows the models directory until ctx is done. A model
// that appears while the backend is Idle is started.
func (a *App) WatchModels(ctx context.Context, opts ...models.WatcherOption) error {
	opts = append([]models.WatcherOption{models.WithWatcherLogger(a.logger)}, opts...)
	w, err := models.NewWatcher(a.library.Dir(), opts...)
	if err != nil {
		return err
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			a.HandleModelEvent(ctx, ev)
		}
	}
}

// HandleModelEvent applies one models directory change.
func (a *App) HandleModelEvent(ctx context.Context, ev models.Event) {
	a.logger.Info("models directory changed", "kind", ev.Kind.String(), "model", ev.Model.Name)

	if ev.Kind != models.ModelAdded || models.IsSpeechComponent(ev.Model.Name) {
		return
	}
	if a.supervisor.Status().State != procmgr.StateIdle {
		return
	}
	if !a.watchStarts.Allow() {
		a.logger.Warn("not starting newly added model, backend was started too recently",
			"model", ev.Model.Name)
		return
	}

	started, err := a.supervisor.StartIfIdle(ctx, ev.Model.Path)
	if err != nil {
		a.logger.Warn("failed to start newly added model", "model", ev.Model.Name, "error", err)
		return
	}
	if !started {
		a.logger.Debug("backend started elsewhere, ignoring new model", "model", ev.Model.Name)
	}
}

// Shutdown stops the backend and closes the diagnostic log. It is safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.supervisor.Shutdown(ctx)
		if err := a.diag.Close(); err != nil {
			a.logger.Warn("failed to close diagnostic log", "error", err)
		}
	})
	return a.shutdownErr
}
