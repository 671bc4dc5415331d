// Package observability wires tracing and the metrics/health HTTP endpoint
// for the genhat daemon.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// HealthFunc reports daemon state for /health. It must not block.
type HealthFunc func() any

// Config holds observability configuration
type Config struct {
	ServiceName    string
	ServiceVersion string

	// MetricsAddr is the listen address for /metrics and /health
	// Empty disables the HTTP server
	MetricsAddr string

	EnableTracing bool

	// TraceExporter is "stdout" or "none"
	TraceExporter string

	// TraceWriter receives stdout exporter output; defaults to os.Stdout
	TraceWriter io.Writer
}

// Manager manages tracing and the metrics endpoint
type Manager struct {
	config         Config
	gatherers      prometheus.Gatherers
	health         HealthFunc
	logger         *slog.Logger
	tracerProvider *sdktrace.TracerProvider
	metricsServer  *http.Server
	listener       net.Listener
	shutdownOnce   sync.Once
}

// Option configures a Manager
type Option func(*Manager)

// WithGatherers adds metric registries served on /metrics
func WithGatherers(gs ...prometheus.Gatherer) Option {
	return func(m *Manager) {
		m.gatherers = append(m.gatherers, gs...)
	}
}

// WithHealth sets the /health payload source
func WithHealth(fn HealthFunc) Option {
	return func(m *Manager) {
		m.health = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new observability manager
func NewManager(config Config, opts ...Option) *Manager {
	if config.ServiceName == "" {
		config.ServiceName = "genhat"
	}
	if config.TraceExporter == "" {
		config.TraceExporter = "stdout"
	}
	if config.TraceWriter == nil {
		config.TraceWriter = os.Stdout
	}

	m := &Manager{
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize sets up observability components
func (m *Manager) Initialize(ctx context.Context) error {
	m.logger.Info("initializing observability",
		"service_name", m.config.ServiceName,
		"service_version", m.config.ServiceVersion,
		"metrics_addr", m.config.MetricsAddr,
		"enable_tracing", m.config.EnableTracing)

	if m.config.EnableTracing && m.config.TraceExporter != "none" {
		if err := m.initializeTracing(ctx); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		m.logger.Info("OpenTelemetry tracing initialized", "exporter", m.config.TraceExporter)
	}

	if m.config.MetricsAddr != "" {
		if err := m.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		m.logger.Info("metrics server started",
			"endpoint", fmt.Sprintf("http://%s/metrics", m.Addr()))
	}

	return nil
}

func (m *Manager) initializeTracing(ctx context.Context) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(m.config.ServiceName),
			semconv.ServiceVersion(m.config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	if m.config.TraceExporter != "stdout" {
		return fmt.Errorf("unsupported trace exporter %q", m.config.TraceExporter)
	}
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(m.config.TraceWriter),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	m.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(m.tracerProvider)
	// Exporter and SDK errors go to the application log
	otel.SetLogger(logr.FromSlogHandler(m.logger.Handler()))

	return nil
}

// Tracer returns a tracer for the given name
func (m *Manager) Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Handler returns the /metrics and /health mux
func (m *Manager) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "healthy"}
		if m.health != nil {
			body["backend"] = m.health()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			m.logger.Debug("failed to write health response", "error", err)
		}
	})

	gatherers := m.gatherers
	if len(gatherers) == 0 {
		gatherers = prometheus.Gatherers{prometheus.NewRegistry()}
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	return mux
}

func (m *Manager) startMetricsServer() error {
	ln, err := net.Listen("tcp", m.config.MetricsAddr)
	if err != nil {
		return err
	}
	m.listener = ln

	m.metricsServer = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := m.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound metrics address, or "" when not serving
func (m *Manager) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Shutdown stops the metrics server and flushes traces
func (m *Manager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	m.shutdownOnce.Do(func() {
		m.logger.Info("shutting down observability components")

		if m.metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := m.metricsServer.Shutdown(shutdownCtx); err != nil {
				m.logger.Error("failed to shutdown metrics server", "error", err)
				shutdownErr = fmt.Errorf("metrics server shutdown: %w", err)
			}
		}

		if m.tracerProvider != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := m.tracerProvider.Shutdown(shutdownCtx); err != nil {
				m.logger.Error("failed to shutdown tracer provider", "error", err)
				if shutdownErr == nil {
					shutdownErr = fmt.Errorf("tracer provider shutdown: %w", err)
				}
			}
		}
	})

	return shutdownErr
}
