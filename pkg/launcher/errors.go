package launcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// LauncherError represents an error with additional context for troubleshooting.
type LauncherError struct {
	// Code identifies the error type
	Code ErrorCode

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance for resolving the error
	Suggestion string
}

// ErrorCode identifies categories of errors
type ErrorCode string

const (
	// Executable resolution errors
	ErrorCodeResolutionFailed  ErrorCode = "RESOLUTION_FAILED"
	ErrorCodeInvalidDescriptor ErrorCode = "INVALID_DESCRIPTOR"

	// Process lifecycle errors
	ErrorCodeLaunchFailed       ErrorCode = "LAUNCH_FAILED"
	ErrorCodeInvocationFailed   ErrorCode = "INVOCATION_FAILED"
	ErrorCodeSupervisorShutdown ErrorCode = "SUPERVISOR_SHUTDOWN"

	// Model and artifact errors
	ErrorCodeModelNotFound   ErrorCode = "MODEL_NOT_FOUND"
	ErrorCodeNoModelsFound   ErrorCode = "NO_MODELS_FOUND"
	ErrorCodeMissingArtifact ErrorCode = "MISSING_ARTIFACT"

	// Configuration errors
	ErrorCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
)

// Context keys with structured values that callers read back.
const (
	contextCheckedPaths = "checked_paths"
	contextStdout       = "stdout"
	contextStderr       = "stderr"
	contextExitCode     = "exit_code"
)

// Error implements the error interface
func (e *LauncherError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", e.Code, e.Message))

	// Sorted so the message is stable across runs
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var contextParts []string
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *LauncherError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LauncherError with the given code and message
func NewError(code ErrorCode, message string) *LauncherError {
	return &LauncherError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *LauncherError) WithContext(key string, value interface{}) *LauncherError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *LauncherError) WithCause(cause error) *LauncherError {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *LauncherError) WithSuggestion(suggestion string) *LauncherError {
	e.Suggestion = suggestion
	return e
}

// ErrResolutionFailed reports that no candidate location held a usable
// executable. Every path that was examined is kept on the error.
func ErrResolutionFailed(backend string, checked []string) *LauncherError {
	return NewError(ErrorCodeResolutionFailed,
		fmt.Sprintf("Executable for backend '%s' not found", backend)).
		WithContext("backend", backend).
		WithContext(contextCheckedPaths, append([]string(nil), checked...)).
		WithSuggestion(fmt.Sprintf(
			"Checked %d location(s). Place the %s binary (and its shared libraries) under one of:\n"+
				"  src-tauri/bin/<backend>   (development tree)\n"+
				"  bin/<backend>             (bundled release)\n"+
				"  resources/bin/<backend>   (packaged resources)",
			len(checked), backend))
}

// ErrInvalidDescriptor creates an error for malformed backend descriptors
func ErrInvalidDescriptor(backend string, cause error) *LauncherError {
	return NewError(ErrorCodeInvalidDescriptor,
		fmt.Sprintf("Backend '%s' has invalid descriptor", backend)).
		WithContext("backend", backend).
		WithCause(cause).
		WithSuggestion(
			"Check the backend catalog and ensure each entry has:\n" +
				"  - name\n" +
				"  - search_dirs\n" +
				"  - platforms.<os>.executables")
}

// ErrLaunchFailed creates an error for process spawn failures
func ErrLaunchFailed(executable string, cause error) *LauncherError {
	return NewError(ErrorCodeLaunchFailed,
		fmt.Sprintf("Failed to start '%s'", executable)).
		WithContext("executable", executable).
		WithCause(cause).
		WithSuggestion(
			"Common causes:\n" +
				"  1. Executable is not runnable (chmod +x)\n" +
				"  2. Missing shared libraries next to the executable\n" +
				"  3. Insufficient permissions")
}

// ErrModelNotFound creates an error for a model path that does not exist
func ErrModelNotFound(modelPath string) *LauncherError {
	return NewError(ErrorCodeModelNotFound,
		fmt.Sprintf("Model not found: %s", modelPath)).
		WithContext("model_path", modelPath).
		WithSuggestion("Set GENHAT_MODEL_PATH or models.dir to the directory holding your .gguf files")
}

// ErrNoModelsFound creates an error for an empty models directory
func ErrNoModelsFound(modelsDir string) *LauncherError {
	return NewError(ErrorCodeNoModelsFound,
		fmt.Sprintf("No models found in %s", modelsDir)).
		WithContext("models_dir", modelsDir).
		WithSuggestion(fmt.Sprintf("Copy a .gguf model into %s", modelsDir))
}

// ErrMissingArtifact creates an error naming a required file that is absent
func ErrMissingArtifact(path string) *LauncherError {
	return NewError(ErrorCodeMissingArtifact,
		fmt.Sprintf("Required file missing: %s", path)).
		WithContext("artifact", path)
}

// ErrInvocationFailed creates an error for a one-shot run that did not
// produce its result. The captured streams are attached verbatim.
func ErrInvocationFailed(executable string, exitCode int, stdout, stderr string) *LauncherError {
	return NewError(ErrorCodeInvocationFailed,
		fmt.Sprintf("'%s' exited with status %d", executable, exitCode)).
		WithContext("executable", executable).
		WithContext(contextExitCode, exitCode).
		WithContext(contextStdout, stdout).
		WithContext(contextStderr, stderr)
}

// ErrSupervisorShutdown is returned for operations attempted after shutdown
func ErrSupervisorShutdown() *LauncherError {
	return NewError(ErrorCodeSupervisorShutdown, "Supervisor has been shut down")
}

// ErrInvalidConfiguration creates an error for configuration validation failures
func ErrInvalidConfiguration(field string, value interface{}, reason string) *LauncherError {
	return NewError(ErrorCodeInvalidConfiguration,
		fmt.Sprintf("Invalid configuration: %s", reason)).
		WithContext("field", field).
		WithContext("value", value)
}

// IsErrorCode checks if an error (or anything it wraps) has the specified error code
func IsErrorCode(err error, code ErrorCode) bool {
	var launcherErr *LauncherError
	if errors.As(err, &launcherErr) {
		return launcherErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or empty string if not a LauncherError
func GetErrorCode(err error) ErrorCode {
	var launcherErr *LauncherError
	if errors.As(err, &launcherErr) {
		return launcherErr.Code
	}
	return ""
}

// GetSuggestion returns the suggestion from an error, or empty string if not available
func GetSuggestion(err error) string {
	var launcherErr *LauncherError
	if errors.As(err, &launcherErr) {
		return launcherErr.Suggestion
	}
	return ""
}

// CheckedPaths returns the locations examined by a failed resolution.
func CheckedPaths(err error) []string {
	var launcherErr *LauncherError
	if !errors.As(err, &launcherErr) {
		return nil
	}
	paths, _ := launcherErr.Context[contextCheckedPaths].([]string)
	return paths
}

// CapturedOutput returns the stdout and stderr carried by an invocation failure.
func CapturedOutput(err error) (stdout, stderr string) {
	var launcherErr *LauncherError
	if !errors.As(err, &launcherErr) {
		return "", ""
	}
	stdout, _ = launcherErr.Context[contextStdout].(string)
	stderr, _ = launcherErr.Context[contextStderr].(string)
	return stdout, stderr
}
