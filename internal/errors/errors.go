package apperrors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Application exit codes define the standard exit statuses for the application.
// These codes are used to signal the outcome of the program execution to the OS.
const (
	ExitSuccess       = 0   // Indicates successful execution.
	ExitErrorGeneric  = 1   // Indicates a generic error.
	ExitErrorTimeout  = 2   // Indicates the run timed out.
	ExitErrorStage    = 3   // Indicates a pipeline stage did not succeed.
	ExitErrorConfig   = 4   // Indicates a configuration error.
	ExitErrorCanceled = 130 // Indicates the run was canceled (e.g., SIGINT).
)

// ConfigError represents a user configuration error, such as invalid flags,
// values or an unreadable pipeline file. It indicates that the application
// cannot proceed due to incorrect user input.
type ConfigError struct {
	// Message explains the specific configuration error.
	Message string
}

// Error returns the error message for a ConfigError.
func (e ConfigError) Error() string { return e.Message }

// NewConfigError creates a new ConfigError with a formatted message.
//
// Parameters:
//   - format: A format string (see fmt.Sprintf).
//   - a: Arguments to be formatted into the string.
//
// Returns:
//   - error: A new ConfigError instance containing the formatted message.
func NewConfigError(format string, a ...any) error {
	return ConfigError{Message: fmt.Sprintf(format, a...)}
}

// StageError reports a pipeline stage that did not succeed. It records which
// stage, for which day, how it ended and what it printed.
type StageError struct {
	// Stage is the name of the stage (e.g., "Step3_CS2").
	Stage string
	// Date is the day being processed, empty for setup stages.
	Date string
	// Status is the classification of the outcome ("failed", "errored", ...).
	Status string
	// ExitCode is the process exit code, -1 if the process never ran.
	ExitCode int
	// Output is the combined stdout/stderr captured from the stage.
	Output string
	// Cause is the underlying error, if any (start failure, context error).
	Cause error
}

// Error returns a formatted message describing the failed stage.
func (e StageError) Error() string {
	where := e.Stage
	if e.Date != "" {
		where = fmt.Sprintf("%s (%s)", e.Stage, e.Date)
	}
	if e.Cause != nil {
		return fmt.Sprintf("stage %s %s: %v", where, e.Status, e.Cause)
	}
	return fmt.Sprintf("stage %s %s with exit code %d", where, e.Status, e.ExitCode)
}

// Unwrap returns the underlying cause, allowing for error chain inspection.
func (e StageError) Unwrap() error { return e.Cause }

// TimeoutError represents a timeout. It captures the operation name and the
// duration limit that was exceeded.
type TimeoutError struct {
	// Operation is the name of the operation that timed out.
	Operation string
	// Limit is the duration after which the operation was considered timed out.
	Limit time.Duration
}

// Error returns a formatted message describing the timeout.
func (e TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %s", e.Operation, e.Limit)
}

// ValidationError represents an input validation failure. It identifies which
// field failed validation and provides a human-readable explanation.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string
	// Message explains the validation failure.
	Message string
}

// Error returns a formatted message describing the validation failure.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
}

// WrapError wraps an error with additional context using fmt.Errorf and %w.
// This allows the wrapped error to be unwrapped with errors.Unwrap() and
// checked with errors.Is() and errors.As().
//
// Parameters:
//   - err: The error to wrap.
//   - format: A format string for the context message.
//   - args: Arguments for the format string.
//
// Returns:
//   - error: The wrapped error, or nil if err is nil.
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsContextError checks if the error is a context cancellation or deadline exceeded error.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ExitCodeFor maps an error returned by a run to the process exit code.
// Context errors take precedence over stage errors so that a stage killed by
// SIGINT reports 130 rather than 3.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var timeoutErr TimeoutError
	var configErr ConfigError
	var validationErr ValidationError
	var stageErr StageError

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &timeoutErr):
		return ExitErrorTimeout
	case errors.Is(err, context.Canceled):
		return ExitErrorCanceled
	case errors.As(err, &configErr), errors.As(err, &validationErr):
		return ExitErrorConfig
	case errors.As(err, &stageErr):
		return ExitErrorStage
	default:
		return ExitErrorGeneric
	}
}
