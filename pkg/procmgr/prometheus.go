package procmgr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	// State metrics
	stateTransitions *prometheus.CounterVec
	running          prometheus.Gauge

	// Performance metrics
	operationDuration   *prometheus.HistogramVec
	terminationDuration prometheus.Histogram

	// Process metrics
	launches *prometheus.CounterVec
	crashes  *prometheus.CounterVec
	errors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "genhat"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_state_transitions_total",
			Help:      "Total number of supervisor state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	pmc.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_running",
			Help:      "1 while the supervisor owns a live backend process",
		},
	)

	pmc.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "supervisor_operation_duration_seconds",
			Help:      "Duration of supervisor operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	pmc.terminationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_termination_duration_seconds",
			Help:      "Time from termination signal to reaped process",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pmc.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_launches_total",
			Help:      "Total number of backend processes launched",
		},
		[]string{"model"},
	)

	pmc.crashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_crashes_total",
			Help:      "Total number of backend processes that exited unexpectedly",
		},
		[]string{"model"},
	)

	pmc.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_errors_total",
			Help:      "Total number of supervisor errors",
		},
		[]string{"error_type"},
	)

	pmc.registry.MustRegister(
		pmc.stateTransitions,
		pmc.running,
		pmc.operationDuration,
		pmc.terminationDuration,
		pmc.launches,
		pmc.crashes,
		pmc.errors,
	)

	return pmc
}

// StateTransition records a state transition
func (pmc *PrometheusMetricsCollector) StateTransition(fromState, toState State) {
	pmc.stateTransitions.WithLabelValues(
		fromState.String(),
		toState.String(),
	).Inc()

	if toState == StateRunning {
		pmc.running.Set(1)
	} else {
		pmc.running.Set(0)
	}
}

// OperationDuration records the duration of a supervisor operation
func (pmc *PrometheusMetricsCollector) OperationDuration(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	pmc.operationDuration.WithLabelValues(
		operation,
		status,
	).Observe(duration.Seconds())
}

// TerminationDuration records the duration of termination
func (pmc *PrometheusMetricsCollector) TerminationDuration(duration time.Duration) {
	pmc.terminationDuration.Observe(duration.Seconds())
}

// ProcessLaunched records a launch
func (pmc *PrometheusMetricsCollector) ProcessLaunched(model string) {
	pmc.launches.WithLabelValues(model).Inc()
}

// ProcessCrashed records an unexpected exit
func (pmc *PrometheusMetricsCollector) ProcessCrashed(model string) {
	pmc.crashes.WithLabelValues(model).Inc()
}

// ProcessError records an error
func (pmc *PrometheusMetricsCollector) ProcessError(errorType string) {
	pmc.errors.WithLabelValues(errorType).Inc()
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
