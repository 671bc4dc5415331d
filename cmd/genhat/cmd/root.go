// Package cmd provides the CLI commands for genhat
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/genhat/genhat-core/cmd/genhat/internal/ui"
	"github.com/genhat/genhat-core/pkg/app"
	"github.com/genhat/genhat-core/pkg/config"
	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "0.1.0"

var (
	cfg        *config.Config
	uiInstance *ui.UI
	logger     *slog.Logger

	v          = config.NewViper()
	configFile string
	debug      bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "genhat",
	Short: "GenHat - local inference engine",
	Long: `genhat runs the local inference backends of the GenHat desktop app.

It supervises the llama.cpp text-generation server (one model at a time),
runs one-shot text-to-speech synthesis, and reports where backend
executables and models were found.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		uiInstance = ui.NewUI()

		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if debug {
			cfg.Log.Level = "debug"
		}

		logger = cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if uiInstance == nil {
			uiInstance = ui.NewUI()
		}
		uiInstance.LauncherError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default $HOME/.genhat/config.yaml)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.String("log-format", "json", "Log format (json or text)")
	flags.String("models-dir", "", "Models directory (GENHAT_MODEL_PATH takes precedence)")
	flags.String("diagnostic-log", "", "Backend diagnostic log path")

	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("models.dir", flags.Lookup("models-dir"))
	_ = v.BindPFlag("diagnostics.log_path", flags.Lookup("diagnostic-log"))
}

// buildApp assembles the app from the loaded configuration.
func buildApp(events launcher.EventPublisher) (*app.App, error) {
	return app.NewBuilder().
		WithConfig(cfg).
		WithLogger(logger).
		WithEventPublisher(events).
		Build()
}
