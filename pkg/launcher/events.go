package launcher

import (
	"context"
	"log/slog"
	"sort"
)

// Lifecycle event types reported for supervised backends.
const (
	EventStarting = "starting"
	EventRunning  = "running"
	EventStopped  = "stopped"
	EventCrashed  = "crashed"
	EventFailed   = "failed"
)

// EventPublisher receives lifecycle events for backend processes so the
// shell can reflect state changes.
//
// Event types:
//   - starting: a backend is being resolved and launched
//   - running: the backend process was spawned
//   - stopped: the backend was terminated on request
//   - crashed: the backend exited without being asked to
//   - failed: a start or switch did not produce a running backend
type EventPublisher interface {
	// ReportLifecycleEvent publishes one event. metadata carries details
	// such as model, pid, exit_code or error.
	ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error
}

// NoopEventPublisher discards events
type NoopEventPublisher struct{}

// ReportLifecycleEvent does nothing
func (n *NoopEventPublisher) ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	return nil
}

// LogEventPublisher writes events to a structured logger
type LogEventPublisher struct {
	Logger *slog.Logger
}

// ReportLifecycleEvent logs the event with its metadata as attributes
func (p *LogEventPublisher) ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []any{"event", eventType}
	for _, k := range keys {
		args = append(args, k, metadata[k])
	}

	level := slog.LevelInfo
	if eventType == EventCrashed || eventType == EventFailed {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, message, args...)
	return nil
}
