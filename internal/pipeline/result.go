package pipeline

import (
	"strings"
	"time"
)

// Status classifies how a stage invocation ended.
type Status int

const (
	// Succeeded means the process exited with status 0.
	Succeeded Status = iota
	// Failed means the process ran and exited non-zero.
	Failed
	// Errored means the process could not be started.
	Errored
	// TimedOut means the per-stage deadline expired.
	TimedOut
	// Canceled means the run was interrupted while the stage was running.
	Canceled
)

// String returns the lower-case status label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Errored:
		return "errored"
	case TimedOut:
		return "timed out"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// OK reports whether the status is Succeeded.
func (s Status) OK() bool { return s == Succeeded }

// Invocation is a fully expanded stage execution.
type Invocation struct {
	Step Step
	// Path is the resolved executable.
	Path string
	// Args are the expanded positional arguments.
	Args []string
	// Date is the day being processed, empty for setup stages.
	Date string
	// Timeout bounds the stage; zero means no limit.
	Timeout time.Duration
}

// CommandLine renders the invocation the way a shell would show it.
func (inv Invocation) CommandLine() string {
	return strings.TrimSpace(inv.Path + " " + strings.Join(inv.Args, " "))
}

// Result is the outcome of one Invocation.
type Result struct {
	Invocation Invocation
	Status     Status
	// ExitCode is the process exit status, -1 when it never ran to completion.
	ExitCode int
	// Output is the combined stdout and stderr with the trailing newline removed.
	Output   string
	Duration time.Duration
	Err      error
}

// Name is the step label of the invocation.
func (r Result) Name() string { return r.Invocation.Step.Label() }
