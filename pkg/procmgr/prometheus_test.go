package procmgr

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPrometheusMetricsCollector_StateTransitions tests state transition metrics
func TestPrometheusMetricsCollector_StateTransitions(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.StateTransition(StateIdle, StateRunning)
	pmc.StateTransition(StateRunning, StateIdle)
	pmc.StateTransition(StateIdle, StateRunning)

	count, err := testutil.GatherAndCount(pmc.registry, "test_supervisor_state_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	expected := `
		# HELP test_supervisor_state_transitions_total Total number of supervisor state transitions
		# TYPE test_supervisor_state_transitions_total counter
		test_supervisor_state_transitions_total{from_state="Idle",to_state="Running"} 2
		test_supervisor_state_transitions_total{from_state="Running",to_state="Idle"} 1
	`
	err = testutil.GatherAndCompare(pmc.registry, strings.NewReader(expected), "test_supervisor_state_transitions_total")
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(pmc.running))
	pmc.StateTransition(StateRunning, StateClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(pmc.running))
}

// TestPrometheusMetricsCollector_OperationDuration tests operation histograms
func TestPrometheusMetricsCollector_OperationDuration(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.OperationDuration("start_or_switch", 100*time.Millisecond, nil)
	pmc.OperationDuration("start_or_switch", 50*time.Millisecond, errors.New("failed"))
	pmc.OperationDuration("stop", 10*time.Millisecond, nil)
	pmc.TerminationDuration(20 * time.Millisecond)

	count, err := testutil.GatherAndCount(pmc.registry, "test_supervisor_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	metricFamilies, err := pmc.registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_process_termination_duration_seconds" {
			found = true
			assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "termination histogram should be registered")
}

// TestPrometheusMetricsCollector_ProcessCounters tests launch, crash and error counters
func TestPrometheusMetricsCollector_ProcessCounters(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.ProcessLaunched("a.gguf")
	pmc.ProcessLaunched("a.gguf")
	pmc.ProcessCrashed("a.gguf")
	pmc.ProcessError("launch_failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(pmc.launches.WithLabelValues("a.gguf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pmc.crashes.WithLabelValues("a.gguf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pmc.errors.WithLabelValues("launch_failed")))
}

// TestPrometheusMetricsCollector_DefaultNamespace tests the fallback namespace
func TestPrometheusMetricsCollector_DefaultNamespace(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("")
	pmc.ProcessLaunched("m")

	count, err := testutil.GatherAndCount(pmc.Registry(), "genhat_process_launches_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
