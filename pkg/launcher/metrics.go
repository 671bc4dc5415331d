package launcher

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InvocationMetrics records one-shot invocation outcomes
type InvocationMetrics interface {
	// InvocationCompleted records a finished invocation; err is nil on success
	InvocationCompleted(backend string, duration time.Duration, err error)
}

type noopInvocationMetrics struct{}

func (n *noopInvocationMetrics) InvocationCompleted(backend string, duration time.Duration, err error) {
}

// NewNoopInvocationMetrics creates a no-op collector
func NewNoopInvocationMetrics() InvocationMetrics {
	return &noopInvocationMetrics{}
}

// PrometheusInvocationMetrics implements InvocationMetrics using Prometheus metrics
type PrometheusInvocationMetrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewPrometheusInvocationMetrics creates the collector and registers it
// with reg.
func NewPrometheusInvocationMetrics(namespace string, reg prometheus.Registerer) (*PrometheusInvocationMetrics, error) {
	if namespace == "" {
		namespace = "genhat"
	}

	m := &PrometheusInvocationMetrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of one-shot backend invocations by outcome",
			},
			[]string{"backend", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall time of one-shot backend invocations",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"backend"},
		),
	}

	for _, c := range []prometheus.Collector{m.invocations, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InvocationCompleted records a finished invocation
func (m *PrometheusInvocationMetrics) InvocationCompleted(backend string, duration time.Duration, err error) {
	m.invocations.WithLabelValues(backend, statusLabel(err)).Inc()
	m.duration.WithLabelValues(backend).Observe(duration.Seconds())
}

// statusLabel maps an error to a bounded label value
func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	if code := GetErrorCode(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

var _ InvocationMetrics = (*PrometheusInvocationMetrics)(nil)
