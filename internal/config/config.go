// Package config parses and validates the command-line configuration of the
// day runner. Values come from flags, then DAYRUN_ environment variables for
// flags that were not set, then defaults.
package config

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/agbru/dayrun/internal/daterange"
	apperrors "github.com/agbru/dayrun/internal/errors"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "DAYRUN_"

// Failure policies.
const (
	// OnFailureAbort stops the run at the first stage that does not succeed.
	OnFailureAbort = "abort"
	// OnFailureContinue skips the rest of the failing day and moves on.
	OnFailureContinue = "continue"
)

// Defaults reproduce the layout of the original 2014 run.
const (
	DefaultBegin     = "2014-01-01"
	DefaultEnd       = "2014-12-30"
	DefaultDataDir   = "DateWiseData/NormalWinso/2014"
	DefaultBinDir    = "bin"
	DefaultWorkDir   = "Result"
	DefaultCtxtFile  = "ctxt_res/test2014.txt"
	DefaultPtxtFile  = "ptxt_res/test2014.txt"
	DefaultBuildCmd  = "make"
	DefaultPipeline  = "daily"
	DefaultTimeout   = 72 * time.Hour
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// AppConfig holds every setting of a run.
type AppConfig struct {
	// Date range
	Begin       string
	End         string
	SkipLeapDay bool

	// Filesystem layout
	DataDir  string
	BinDir   string
	WorkDir  string
	CtxtFile string
	PtxtFile string

	// Pipeline
	Pipeline     string
	BuildCmd     string
	SkipBuild    bool
	OnFailure    string
	MaxDays      int
	StopAfter    string
	StageTimeout time.Duration
	Timeout      time.Duration
	DryRun       bool
	NoPreflight  bool

	// Outputs
	MetricsFile string
	OutputFile  string

	// Presentation
	LogLevel   string
	LogFormat  string
	Quiet      bool
	Verbose    bool
	NoColor    bool
	TUI        bool
	Completion string
}

// Default returns the configuration used when no flags are given.
func Default() AppConfig {
	return AppConfig{
		Begin:       DefaultBegin,
		End:         DefaultEnd,
		SkipLeapDay: true,
		DataDir:     DefaultDataDir,
		BinDir:      DefaultBinDir,
		WorkDir:     DefaultWorkDir,
		CtxtFile:    DefaultCtxtFile,
		PtxtFile:    DefaultPtxtFile,
		Pipeline:    DefaultPipeline,
		BuildCmd:    DefaultBuildCmd,
		OnFailure:   OnFailureAbort,
		Timeout:     DefaultTimeout,
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
	}
}

// ParseConfig parses command-line arguments into an AppConfig.
// It returns flag.ErrHelp when -h/--help was requested.
func ParseConfig(programName string, args []string, errWriter io.Writer) (AppConfig, error) {
	cfg := Default()
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(errWriter)

	fs.StringVar(&cfg.Begin, "begin", cfg.Begin, "First day to process (YYYY-MM-DD).")
	fs.StringVar(&cfg.End, "end", cfg.End, "Last day to process, inclusive (YYYY-MM-DD).")
	fs.BoolVar(&cfg.SkipLeapDay, "skip-leap-day", cfg.SkipLeapDay, "Do not process February 29.")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding one <YYYY-MM-DD>.txt input file per day.")
	fs.StringVar(&cfg.BinDir, "bin-dir", cfg.BinDir, "Directory searched first for stage executables.")
	fs.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "Working directory wiped and recreated after every day.")
	fs.StringVar(&cfg.CtxtFile, "ctxt", cfg.CtxtFile, "Ciphertext result accumulator file.")
	fs.StringVar(&cfg.PtxtFile, "ptxt", cfg.PtxtFile, "Plaintext result accumulator file.")
	fs.StringVar(&cfg.Pipeline, "pipeline", cfg.Pipeline, "Built-in pipeline (daily, hourly) or path to a YAML pipeline file.")
	fs.StringVar(&cfg.BuildCmd, "build-cmd", cfg.BuildCmd, "Build command run once before the first stage.")
	fs.BoolVar(&cfg.SkipBuild, "skip-build", cfg.SkipBuild, "Do not run the build command.")
	fs.StringVar(&cfg.OnFailure, "on-failure", cfg.OnFailure, "What to do when a stage fails: abort or continue.")
	fs.IntVar(&cfg.MaxDays, "max-days", cfg.MaxDays, "Process at most this many days (0 = whole range).")
	fs.StringVar(&cfg.StopAfter, "stop-after", cfg.StopAfter, "Stop the run right after this stage of the first day.")
	fs.DurationVar(&cfg.StageTimeout, "stage-timeout", cfg.StageTimeout, "Maximum duration of a single stage (0 = unlimited).")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Maximum duration of the whole run.")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Print the commands instead of running them.")
	fs.BoolVar(&cfg.NoPreflight, "no-preflight", cfg.NoPreflight, "Skip the check that every stage executable exists.")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file when the run ends.")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Write a run report to this file.")
	fs.StringVar(&cfg.OutputFile, "o", cfg.OutputFile, "Shorthand for --output.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error, disabled.")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: console or json.")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "Only print the final summary line.")
	fs.BoolVar(&cfg.Quiet, "q", cfg.Quiet, "Shorthand for --quiet.")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Print stage output even when the stage succeeds.")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Shorthand for --verbose.")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output.")
	fs.BoolVar(&cfg.TUI, "tui", cfg.TUI, "Show the interactive dashboard.")
	fs.StringVar(&cfg.Completion, "completion", cfg.Completion, "Print a shell completion script (bash, zsh, fish).")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\n", programName)
		fmt.Fprintf(fs.Output(), "Runs the external stage pipeline once per day over a date range.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, apperrors.NewConfigError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	applyEnvOverrides(&cfg, fs)

	if cfg.Completion != "" {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent or invalid values.
func (c AppConfig) Validate() error {
	if _, err := c.Range(); err != nil {
		return err
	}
	switch c.OnFailure {
	case OnFailureAbort, OnFailureContinue:
	default:
		return apperrors.ValidationError{Field: "on-failure", Message: fmt.Sprintf("unknown policy %q (accepted: abort, continue)", c.OnFailure)}
	}
	if c.MaxDays < 0 {
		return apperrors.ValidationError{Field: "max-days", Message: "must be non-negative"}
	}
	if c.StageTimeout < 0 {
		return apperrors.ValidationError{Field: "stage-timeout", Message: "must be non-negative"}
	}
	if c.Timeout <= 0 {
		return apperrors.ValidationError{Field: "timeout", Message: "must be positive"}
	}
	if wd := filepath.Clean(c.WorkDir); c.WorkDir == "" || wd == "." || wd == string(filepath.Separator) {
		return apperrors.ValidationError{Field: "workdir", Message: fmt.Sprintf("%q cannot be used as a working directory", c.WorkDir)}
	}
	if c.CtxtFile == "" || c.PtxtFile == "" {
		return apperrors.ValidationError{Field: "ctxt/ptxt", Message: "accumulator paths must not be empty"}
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return apperrors.ValidationError{Field: "log-format", Message: fmt.Sprintf("unknown format %q (accepted: console, json)", c.LogFormat)}
	}
	if !c.SkipBuild && strings.TrimSpace(c.BuildCmd) == "" {
		return apperrors.ValidationError{Field: "build-cmd", Message: "must not be empty unless --skip-build is set"}
	}
	return nil
}

// Range returns the validated date range of the run.
func (c AppConfig) Range() (daterange.Range, error) {
	return daterange.New(c.Begin, c.End, c.SkipLeapDay)
}
