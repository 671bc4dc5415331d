package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/genhat/genhat-core/pkg/observability"
	"github.com/genhat/genhat-core/pkg/procmgr"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long serve waits for the backend to stop.
const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the text-generation backend until interrupted",
	Long: `Start the text-generation server on the default model and keep it
supervised until SIGINT or SIGTERM.

The default model is LFM-1.2B-INT8.gguf when present, otherwise the first
model in the models directory. With an empty directory the server stays idle
and the first model copied in is started.

Example:
  GENHAT_MODEL_PATH=~/models genhat serve --metrics-addr 127.0.0.1:9100`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("metrics-addr", "", "Listen address for /metrics and /health (empty disables)")
	flags.Bool("autostart", true, "Start the default model on launch")
	flags.Bool("watch", true, "Watch the models directory for new models")
	flags.Bool("enable-tracing", false, "Enable OpenTelemetry tracing")
	flags.Duration("terminate-timeout", procmgr.DefaultTerminateTimeout, "How long to wait for the backend to exit")

	_ = v.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	_ = v.BindPFlag("supervisor.autostart", flags.Lookup("autostart"))
	_ = v.BindPFlag("models.watch", flags.Lookup("watch"))
	_ = v.BindPFlag("tracing.enabled", flags.Lookup("enable-tracing"))
	_ = v.BindPFlag("supervisor.terminate_timeout", flags.Lookup("terminate-timeout"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var events launcher.EventPublisher = uiInstance
	if cfg.Log.Format == "json" {
		events = &launcher.LogEventPublisher{Logger: logger}
	}

	a, err := buildApp(events)
	if err != nil {
		return err
	}

	obs := observability.NewManager(observability.Config{
		ServiceName:    "genhat",
		ServiceVersion: Version,
		MetricsAddr:    cfg.Metrics.Addr,
		EnableTracing:  cfg.Tracing.Enabled,
		TraceExporter:  cfg.Tracing.Exporter,
		TraceWriter:    os.Stderr,
	},
		observability.WithGatherers(a.Gatherer()),
		observability.WithHealth(func() any {
			s := a.Status()
			return map[string]any{"state": s.State.String(), "model": s.Model, "pid": s.PID}
		}),
		observability.WithLogger(logger),
	)
	if err := obs.Initialize(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	logger.Info("genhat starting",
		"version", Version,
		"models_dir", a.ModelsDir(),
		"diagnostic_log", a.DiagnosticLogPath())

	if err := a.Start(ctx); err != nil {
		return err
	}

	watchDone := make(chan struct{})
	if cfg.Models.Watch {
		go func() {
			defer close(watchDone)
			if err := a.WatchModels(ctx); err != nil {
				logger.Warn("not watching models directory", "dir", a.ModelsDir(), "error", err)
			}
		}()
	} else {
		close(watchDone)
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = a.Shutdown(shutdownCtx)
	<-watchDone
	if obsErr := obs.Shutdown(shutdownCtx); obsErr != nil && err == nil {
		err = obsErr
	}
	return err
}
