package procmgr

import (
	"time"
)

// MetricsCollector defines the interface for collecting supervisor metrics
type MetricsCollector interface {
	// StateTransition records a change of the supervised slot
	StateTransition(fromState, toState State)

	// OperationDuration records the duration of start_or_switch, stop or shutdown
	OperationDuration(operation string, duration time.Duration, err error)

	// TerminationDuration records how long reaping a terminated process took
	TerminationDuration(duration time.Duration)

	// ProcessLaunched records a successful backend launch
	ProcessLaunched(model string)

	// ProcessCrashed records a backend exiting without being asked to
	ProcessCrashed(model string)

	// ProcessError records an error of the given type
	ProcessError(errorType string)
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) StateTransition(fromState, toState State) {}
func (n *noopMetricsCollector) OperationDuration(operation string, duration time.Duration, err error) {
}
func (n *noopMetricsCollector) TerminationDuration(duration time.Duration) {}
func (n *noopMetricsCollector) ProcessLaunched(model string)               {}
func (n *noopMetricsCollector) ProcessCrashed(model string)                {}
func (n *noopMetricsCollector) ProcessError(errorType string)              {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
