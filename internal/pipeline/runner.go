//go:generate mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/agbru/dayrun/internal/errors"
)

// Runner executes a single invocation and waits for it to finish.
//
// Run always returns a populated Result. The error is nil exactly when the
// result status is Succeeded; otherwise it is an apperrors.StageError.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, inv Invocation) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}

// WaitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const WaitDelay = 5 * time.Second

// ExecRunner runs invocations as child processes.
type ExecRunner struct {
	// Dir is the working directory of the child, empty for the current one.
	Dir string
	// Env is appended to the parent environment.
	Env []string
}

// NewExecRunner creates an ExecRunner running children in dir.
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{Dir: dir}
}

// Run starts the process, captures its combined output and classifies the
// outcome. On cancellation the whole process group is killed.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	stageCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(stageCtx, inv.Path, inv.Args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = WaitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Invocation: inv,
		Output:     strings.TrimSuffix(out.String(), "\n"),
		Duration:   time.Since(start),
		ExitCode:   -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Status = Succeeded
		return res, nil
	case ctx.Err() != nil:
		res.Status = Canceled
		res.Err = ctx.Err()
	case stageCtx.Err() != nil:
		res.Status = TimedOut
		res.Err = apperrors.TimeoutError{Operation: inv.Step.Label(), Limit: inv.Timeout}
	case errors.As(err, &exitErr):
		res.Status = Failed
	default:
		res.Status = Errored
		res.Err = err
	}
	return res, StageErrorFor(res)
}

// StageErrorFor converts a non-succeeded result into an apperrors.StageError.
func StageErrorFor(res Result) error {
	if res.Status == Succeeded {
		return nil
	}
	return apperrors.StageError{
		Stage:    res.Name(),
		Date:     res.Invocation.Date,
		Status:   res.Status.String(),
		ExitCode: res.ExitCode,
		Output:   res.Output,
		Cause:    res.Err,
	}
}

// DryRunRunner prints each invocation instead of executing it.
type DryRunRunner struct {
	Out io.Writer
}

// Run writes the command line and reports success.
func (d DryRunRunner) Run(_ context.Context, inv Invocation) (Result, error) {
	fmt.Fprintf(d.Out, "[dry-run] %s\n", inv.CommandLine())
	return Result{Invocation: inv, Status: Succeeded}, nil
}

// Resolve maps a stage command to the path that will be executed. Commands
// containing a path separator are used as given. Bare names resolve to
// binDir/name when that file exists, then to the bare name when it is on
// PATH; otherwise binDir/name is returned so the failure surfaces when it
// runs.
func Resolve(binDir, command string) string {
	if strings.ContainsRune(command, filepath.Separator) || strings.ContainsRune(command, '/') {
		return command
	}
	if binDir != "" {
		candidate := filepath.Join(binDir, command)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := exec.LookPath(command); err == nil || binDir == "" {
		return command
	}
	return filepath.Join(binDir, command)
}
