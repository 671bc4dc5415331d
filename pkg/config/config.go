// Package config manages genhat configuration
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GENHAT_MODELS_DIR.
const EnvPrefix = "GENHAT"

// Config holds the genhat configuration
type Config struct {
	// ModelPath mirrors GENHAT_MODEL_PATH: a model file or directory
	ModelPath string `mapstructure:"model_path"`

	Models      ModelsConfig      `mapstructure:"models"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Backends    BackendsConfig    `mapstructure:"backends"`
	Supervisor  SupervisorConfig  `mapstructure:"supervisor"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Log         LogConfig         `mapstructure:"log"`
}

// ModelsConfig holds the models directory settings
type ModelsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// DiagnosticsConfig holds the backend diagnostic log settings
type DiagnosticsConfig struct {
	LogPath string `mapstructure:"log_path"`
}

// BackendsConfig holds executable resolution settings
type BackendsConfig struct {
	// Optional YAML catalog overriding built-in descriptors
	Catalog string `mapstructure:"catalog"`

	// Optional directory to search from instead of the running executable
	Anchor string `mapstructure:"anchor"`
}

// SupervisorConfig holds backend supervision settings
type SupervisorConfig struct {
	TerminateTimeout time.Duration `mapstructure:"terminate_timeout"`
	Autostart        bool          `mapstructure:"autostart"`
}

// MetricsConfig holds the metrics endpoint settings
type MetricsConfig struct {
	// Listen address for /metrics and /health; empty disables
	Addr string `mapstructure:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// LogConfig holds application logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Models:      ModelsConfig{Watch: true},
		Diagnostics: DiagnosticsConfig{LogPath: launcher.DefaultDiagnosticLogPath()},
		Supervisor:  SupervisorConfig{TerminateTimeout: 10 * time.Second, Autostart: true},
		Tracing:     TracingConfig{Exporter: "stdout"},
		Log:         LogConfig{Level: "info", Format: "json"},
	}
}

// NewViper returns a viper instance with genhat defaults, search paths and
// environment bindings applied.
func NewViper() *viper.Viper {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.genhat")
	v.AddConfigPath(".")

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("model_path", "")
	v.SetDefault("models.dir", "")
	v.SetDefault("models.watch", true)
	v.SetDefault("diagnostics.log_path", launcher.DefaultDiagnosticLogPath())
	v.SetDefault("backends.catalog", "")
	v.SetDefault("backends.anchor", "")
	v.SetDefault("supervisor.terminate_timeout", "10s")
	v.SetDefault("supervisor.autostart", true)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	return v
}

// Load reads configuration into a Config. configFile, when set, replaces
// the search paths; a missing file on the search paths is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found - use defaults)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Supervisor.TerminateTimeout <= 0 {
		return launcher.ErrInvalidConfiguration("supervisor.terminate_timeout", c.Supervisor.TerminateTimeout, "must be positive")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return launcher.ErrInvalidConfiguration("log.level", c.Log.Level, err.Error())
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return launcher.ErrInvalidConfiguration("log.format", c.Log.Format, "must be json or text")
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "none":
		default:
			return launcher.ErrInvalidConfiguration("tracing.exporter", c.Tracing.Exporter, "must be stdout or none")
		}
	}

	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// NewLogger builds the application logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// EnsureGenhatDir ensures the ~/.genhat directory exists
func EnsureGenhatDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(home, ".genhat"), 0755)
}
