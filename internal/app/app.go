// Package app wires configuration, the stage runner, the driver and the
// presentation layers into the dayrun command.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/agbru/dayrun/internal/cli"
	"github.com/agbru/dayrun/internal/config"
	apperrors "github.com/agbru/dayrun/internal/errors"
	"github.com/agbru/dayrun/internal/logging"
	"github.com/agbru/dayrun/internal/metrics"
	"github.com/agbru/dayrun/internal/orchestration"
	"github.com/agbru/dayrun/internal/pipeline"
	"github.com/agbru/dayrun/internal/tui"
	"github.com/agbru/dayrun/internal/ui"
)

// Application represents the dayrun application instance.
type Application struct {
	Config      config.AppConfig
	ProgramName string
	ErrWriter   io.Writer
	// Runner overrides the stage runner chosen from the configuration.
	Runner pipeline.Runner

	isTerminal func(io.Writer) bool
}

// AppOption configures an Application during construction.
type AppOption func(*Application)

// WithRunner sets the runner used for every stage, bypassing exec and dry-run.
func WithRunner(r pipeline.Runner) AppOption {
	return func(a *Application) { a.Runner = r }
}

// New creates a new Application instance by parsing command-line arguments.
// args[0] is the program name. Flag syntax errors are returned as
// ConfigError; flag.ErrHelp is returned unchanged.
func New(args []string, errWriter io.Writer, opts ...AppOption) (*Application, error) {
	app := &Application{ErrWriter: errWriter, ProgramName: "dayrun", isTerminal: isTerminal}
	for _, opt := range opts {
		opt(app)
	}

	var cmdArgs []string
	if len(args) > 0 {
		app.ProgramName = args[0]
		cmdArgs = args[1:]
	}

	cfg, err := config.ParseConfig(app.ProgramName, cmdArgs, errWriter)
	if err != nil {
		if IsHelpError(err) || apperrors.ExitCodeFor(err) == apperrors.ExitErrorConfig {
			return nil, err
		}
		return nil, apperrors.ConfigError{Message: err.Error()}
	}
	app.Config = cfg
	return app, nil
}

// Run executes the application and returns the process exit code.
func (a *Application) Run(ctx context.Context, out io.Writer) int {
	if a.Config.Completion != "" {
		return a.runCompletion(out)
	}

	ui.InitTheme(a.Config.NoColor)
	logger := logging.New(a.ErrWriter, "dayrun", logging.Options{
		Format:  a.Config.LogFormat,
		Level:   a.Config.LogLevel,
		NoColor: a.Config.NoColor,
	})

	ctx, cancelTimeout := context.WithTimeout(ctx, a.Config.Timeout)
	defer cancelTimeout()
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	err := a.run(ctx, out, logger)
	if err != nil {
		logger.Error("run failed", err)
	}
	return apperrors.ExitCodeFor(err)
}

func (a *Application) run(ctx context.Context, out io.Writer, logger logging.Logger) error {
	p, err := config.ResolvePipeline(a.Config)
	if err != nil {
		return err
	}
	opts, err := orchestration.OptionsFromConfig(a.Config, p)
	if err != nil {
		return err
	}

	if a.Runner == nil && !a.Config.DryRun && !a.Config.NoPreflight {
		if err := pipeline.Preflight(ctx, p, a.Config.BinDir); err != nil {
			return err
		}
	}

	recorder := metrics.NewRecorder(p.Name)
	logger.Info("starting run",
		logging.String("pipeline", p.Name),
		logging.String("begin", a.Config.Begin),
		logging.String("end", a.Config.End),
		logging.Int("planned_days", opts.PlannedDays()),
	)

	runFn := func(ctx context.Context, observer orchestration.Observer) error {
		runner := a.runner(out)
		driver := orchestration.NewDriver(opts, runner, orchestration.Observers{observer, recorder}, logger)
		summary, runErr := driver.Run(ctx)
		if runErr == nil {
			runErr = skippedDaysError(summary)
		}
		return errors.Join(runErr, a.writeOutputs(logger, recorder, summary, runErr))
	}

	if a.Config.TUI {
		return tui.Run(ctx, runFn, tui.Options{Pipeline: p.Name, Version: Version, TotalDays: opts.PlannedDays()})
	}
	presenter := cli.NewPresenter(out, cli.PresenterOptions{
		Quiet:   a.Config.Quiet,
		Verbose: a.Config.Verbose,
		Spinner: a.isTerminal(out),
	})
	return runFn(ctx, presenter)
}

// runner picks the stage runner for the configuration.
func (a *Application) runner(out io.Writer) pipeline.Runner {
	switch {
	case a.Runner != nil:
		return a.Runner
	case a.Config.DryRun && a.Config.TUI:
		return pipeline.DryRunRunner{Out: io.Discard}
	case a.Config.DryRun:
		return pipeline.DryRunRunner{Out: out}
	}
	return pipeline.NewExecRunner("")
}

// writeOutputs writes the optional metrics textfile and run report.
func (a *Application) writeOutputs(logger logging.Logger, recorder *metrics.Recorder, summary orchestration.RunSummary, runErr error) error {
	var errs []error
	if path := a.Config.MetricsFile; path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			errs = append(errs, apperrors.WrapError(err, "writing metrics to %s", path))
		} else {
			logger.Debug("metrics written", logging.String("path", path))
		}
	}
	if path := a.Config.OutputFile; path != "" {
		if err := cli.WriteRunReport(path, summary, runErr); err != nil {
			errs = append(errs, apperrors.WrapError(err, "writing report to %s", path))
		} else {
			logger.Debug("report written", logging.String("path", path))
		}
	}
	return errors.Join(errs...)
}

// skippedDaysError reports the days that failed under --on-failure continue,
// so that the exit status still signals them.
func skippedDaysError(summary orchestration.RunSummary) error {
	failed := summary.Count(orchestration.DayFailed)
	if failed == 0 {
		return nil
	}
	for _, d := range summary.Days {
		if res, ok := d.Failure(); ok {
			return fmt.Errorf("%d of %d days failed, first: %w", failed, len(summary.Days), pipeline.StageErrorFor(res))
		}
	}
	return nil
}

// runCompletion generates shell completion scripts.
func (a *Application) runCompletion(out io.Writer) int {
	if err := cli.GenerateCompletion(out, a.Config.Completion, a.ProgramName); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error generating completion: %v\n", err)
		return apperrors.ExitErrorConfig
	}
	return apperrors.ExitSuccess
}

// IsHelpError checks if the error is a help flag error (--help was used).
func IsHelpError(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
