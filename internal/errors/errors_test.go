package apperrors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfigError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		err         error
		expected    string
		checkTypeAs bool
	}{
		{
			name:     "Error returns message",
			err:      ConfigError{Message: "invalid flag value"},
			expected: "invalid flag value",
		},
		{
			name:     "NewConfigError creates formatted error",
			err:      NewConfigError("invalid value %d for flag %s", 42, "--max-days"),
			expected: "invalid value 42 for flag --max-days",
		},
		{
			name:        "ConfigError type assertion",
			err:         NewConfigError("test error"),
			expected:    "test error",
			checkTypeAs: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.err.Error())
			}
			if tt.checkTypeAs {
				var configErr ConfigError
				if !errors.As(tt.err, &configErr) {
					t.Error("expected error to be ConfigError type")
				}
			}
		})
	}
}

func TestTimeoutError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		err         TimeoutError
		expected    string
		checkTypeAs bool
	}{
		{
			name:     "Error returns formatted message",
			err:      TimeoutError{Operation: "Step3_CS2", Limit: 30 * time.Second},
			expected: `operation "Step3_CS2" timed out after 30s`,
		},
		{
			name:     "Error with subsecond limit",
			err:      TimeoutError{Operation: "CheckRes", Limit: 500 * time.Millisecond},
			expected: `operation "CheckRes" timed out after 500ms`,
		},
		{
			name:        "errors.As works with TimeoutError",
			err:         TimeoutError{Operation: "run", Limit: 10 * time.Second},
			expected:    `operation "run" timed out after 10s`,
			checkTypeAs: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var err error = tt.err
			if err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, err.Error())
			}
			if tt.checkTypeAs {
				var timeoutErr TimeoutError
				if !errors.As(err, &timeoutErr) {
					t.Error("expected error to be TimeoutError type")
				}
				if timeoutErr.Operation != tt.err.Operation {
					t.Errorf("expected Operation %q, got %q", tt.err.Operation, timeoutErr.Operation)
				}
				if timeoutErr.Limit != tt.err.Limit {
					t.Errorf("expected Limit %v, got %v", tt.err.Limit, timeoutErr.Limit)
				}
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		err         ValidationError
		expected    string
		checkTypeAs bool
	}{
		{
			name:     "Error returns formatted message",
			err:      ValidationError{Field: "begin", Message: "must not be after end"},
			expected: `validation error for "begin": must not be after end`,
		},
		{
			name:     "Error with different field",
			err:      ValidationError{Field: "max-days", Message: "must be non-negative"},
			expected: `validation error for "max-days": must be non-negative`,
		},
		{
			name:        "errors.As works with ValidationError",
			err:         ValidationError{Field: "on-failure", Message: "unknown policy"},
			expected:    `validation error for "on-failure": unknown policy`,
			checkTypeAs: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var err error = tt.err
			if err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, err.Error())
			}
			if tt.checkTypeAs {
				var validationErr ValidationError
				if !errors.As(err, &validationErr) {
					t.Error("expected error to be ValidationError type")
				}
				if validationErr.Field != tt.err.Field {
					t.Errorf("expected Field %q, got %q", tt.err.Field, validationErr.Field)
				}
				if validationErr.Message != tt.err.Message {
					t.Errorf("expected Message %q, got %q", tt.err.Message, validationErr.Message)
				}
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		original    error
		format      string
		args        []any
		expectedMsg string
		expectNil   bool
		checkIs     error
	}{
		{
			name:        "wraps error with context",
			original:    errors.New("file not found"),
			format:      "failed to load config",
			expectedMsg: "failed to load config: file not found",
		},
		{
			name:        "preserves error chain",
			original:    context.DeadlineExceeded,
			format:      "operation timed out",
			expectedMsg: "operation timed out: context deadline exceeded",
			checkIs:     context.DeadlineExceeded,
		},
		{
			name:      "returns nil for nil error",
			original:  nil,
			format:    "some context",
			expectNil: true,
		},
		{
			name:        "supports format arguments",
			original:    errors.New("connection reset"),
			format:      "failed to connect to %s:%d",
			args:        []any{"localhost", 8080},
			expectedMsg: "failed to connect to localhost:8080: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wrapped := WrapError(tt.original, tt.format, tt.args...)

			if tt.expectNil {
				if wrapped != nil {
					t.Error("WrapError(nil, ...) should return nil")
				}
				return
			}

			if wrapped == nil {
				t.Fatal("wrapped error should not be nil")
			}

			if wrapped.Error() != tt.expectedMsg {
				t.Errorf("expected %q, got %q", tt.expectedMsg, wrapped.Error())
			}

			if tt.checkIs != nil && !errors.Is(wrapped, tt.checkIs) {
				t.Errorf("wrapped error should preserve %v in the chain", tt.checkIs)
			}
		})
	}
}

func TestIsContextError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"context.Canceled", context.Canceled, true},
		{"context.DeadlineExceeded", context.DeadlineExceeded, true},
		{"wrapped context.Canceled", WrapError(context.Canceled, "operation canceled"), true},
		{"regular error", errors.New("some error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := IsContextError(tt.err)
			if result != tt.expected {
				t.Errorf("IsContextError(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	t.Parallel()
	// Verify exit codes are distinct and match expected values
	codes := map[string]int{
		"ExitSuccess":       ExitSuccess,
		"ExitErrorGeneric":  ExitErrorGeneric,
		"ExitErrorTimeout":  ExitErrorTimeout,
		"ExitErrorStage":    ExitErrorStage,
		"ExitErrorConfig":   ExitErrorConfig,
		"ExitErrorCanceled": ExitErrorCanceled,
	}

	// Check expected values
	if ExitSuccess != 0 {
		t.Errorf("ExitSuccess should be 0, got %d", ExitSuccess)
	}
	if ExitErrorCanceled != 130 {
		t.Errorf("ExitErrorCanceled should be 130 (SIGINT convention), got %d", ExitErrorCanceled)
	}

	// Check all codes are unique
	seen := make(map[int]string)
	for name, code := range codes {
		if existing, ok := seen[code]; ok {
			t.Errorf("duplicate exit code %d: %s and %s", code, existing, name)
		}
		seen[code] = name
	}
}

func TestStageError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      StageError
		expected string
		checkIs  error
	}{
		{
			name:     "non-zero exit with date",
			err:      StageError{Stage: "Step2_TA1", Date: "2014-01-01", Status: "failed", ExitCode: 2},
			expected: "stage Step2_TA1 (2014-01-01) failed with exit code 2",
		},
		{
			name:     "setup stage without date",
			err:      StageError{Stage: "make", Status: "failed", ExitCode: 1},
			expected: "stage make failed with exit code 1",
		},
		{
			name:     "cause is reported and unwrapped",
			err:      StageError{Stage: "CheckRes", Date: "2014-03-01", Status: "canceled", ExitCode: -1, Cause: context.Canceled},
			expected: "stage CheckRes (2014-03-01) canceled: context canceled",
			checkIs:  context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.err.Error())
			}
			if tt.checkIs != nil && !errors.Is(tt.err, tt.checkIs) {
				t.Errorf("errors.Is should find %v in the chain", tt.checkIs)
			}
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitErrorGeneric},
		{"config", NewConfigError("bad flag"), ExitErrorConfig},
		{"validation", ValidationError{Field: "end", Message: "bad date"}, ExitErrorConfig},
		{"stage", StageError{Stage: "Step1_CS1", Status: "failed", ExitCode: 1}, ExitErrorStage},
		{"wrapped stage", WrapError(StageError{Stage: "Step1_CS1", Status: "failed"}, "day 0"), ExitErrorStage},
		{"deadline", context.DeadlineExceeded, ExitErrorTimeout},
		{"stage timeout", StageError{Stage: "Step5_CS3", Status: "timed out", Cause: TimeoutError{Operation: "Step5_CS3", Limit: time.Second}}, ExitErrorTimeout},
		{"canceled stage", StageError{Stage: "Step5_CS3", Status: "canceled", Cause: context.Canceled}, ExitErrorCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor(%v) = %d, expected %d", tt.err, got, tt.expected)
			}
		})
	}
}
