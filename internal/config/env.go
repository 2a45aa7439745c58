// This file contains environment variable utilities for configuration override.

package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// isFlagSet checks if a flag was explicitly set on the command line.
// This is used to determine whether to apply environment variable overrides.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// isFlagSetAny checks if any of the specified flags were explicitly set.
// This is useful for aliased flags where either the short or long form may be used.
func isFlagSetAny(fs *flag.FlagSet, names ...string) bool {
	for _, name := range names {
		if isFlagSet(fs, name) {
			return true
		}
	}
	return false
}

// envOverride declares a single environment variable override.
// Each entry maps an env key (without the DAYRUN_ prefix) to the CLI flag
// name(s) it corresponds to and a function that applies the env value.
type envOverride struct {
	envKey string
	flags  []string
	apply  func(*AppConfig, string)
}

// envOverrides is the declarative table of all environment variable overrides,
// grouped as numeric, duration, string, bool.
var envOverrides = []envOverride{
	// Numeric overrides
	{"MAX_DAYS", []string{"max-days"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.MaxDays = parsed
		}
	}},

	// Duration overrides
	{"TIMEOUT", []string{"timeout"}, func(c *AppConfig, v string) {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.Timeout = parsed
		}
	}},
	{"STAGE_TIMEOUT", []string{"stage-timeout"}, func(c *AppConfig, v string) {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.StageTimeout = parsed
		}
	}},

	// String overrides
	{"BEGIN", []string{"begin"}, func(c *AppConfig, v string) { c.Begin = v }},
	{"END", []string{"end"}, func(c *AppConfig, v string) { c.End = v }},
	{"DATA_DIR", []string{"data-dir"}, func(c *AppConfig, v string) { c.DataDir = v }},
	{"BIN_DIR", []string{"bin-dir"}, func(c *AppConfig, v string) { c.BinDir = v }},
	{"WORKDIR", []string{"workdir"}, func(c *AppConfig, v string) { c.WorkDir = v }},
	{"CTXT", []string{"ctxt"}, func(c *AppConfig, v string) { c.CtxtFile = v }},
	{"PTXT", []string{"ptxt"}, func(c *AppConfig, v string) { c.PtxtFile = v }},
	{"PIPELINE", []string{"pipeline"}, func(c *AppConfig, v string) { c.Pipeline = v }},
	{"BUILD_CMD", []string{"build-cmd"}, func(c *AppConfig, v string) { c.BuildCmd = v }},
	{"ON_FAILURE", []string{"on-failure"}, func(c *AppConfig, v string) { c.OnFailure = v }},
	{"STOP_AFTER", []string{"stop-after"}, func(c *AppConfig, v string) { c.StopAfter = v }},
	{"METRICS_FILE", []string{"metrics-file"}, func(c *AppConfig, v string) { c.MetricsFile = v }},
	{"OUTPUT", []string{"output", "o"}, func(c *AppConfig, v string) { c.OutputFile = v }},
	{"LOG_LEVEL", []string{"log-level"}, func(c *AppConfig, v string) { c.LogLevel = v }},
	{"LOG_FORMAT", []string{"log-format"}, func(c *AppConfig, v string) { c.LogFormat = v }},

	// Boolean overrides
	{"SKIP_LEAP_DAY", []string{"skip-leap-day"}, func(c *AppConfig, v string) {
		c.SkipLeapDay = parseBoolEnv(v, c.SkipLeapDay)
	}},
	{"SKIP_BUILD", []string{"skip-build"}, func(c *AppConfig, v string) {
		c.SkipBuild = parseBoolEnv(v, c.SkipBuild)
	}},
	{"DRY_RUN", []string{"dry-run"}, func(c *AppConfig, v string) {
		c.DryRun = parseBoolEnv(v, c.DryRun)
	}},
	{"NO_PREFLIGHT", []string{"no-preflight"}, func(c *AppConfig, v string) {
		c.NoPreflight = parseBoolEnv(v, c.NoPreflight)
	}},
	{"QUIET", []string{"quiet", "q"}, func(c *AppConfig, v string) {
		c.Quiet = parseBoolEnv(v, c.Quiet)
	}},
	{"VERBOSE", []string{"verbose", "v"}, func(c *AppConfig, v string) {
		c.Verbose = parseBoolEnv(v, c.Verbose)
	}},
	{"NO_COLOR", []string{"no-color"}, func(c *AppConfig, v string) {
		c.NoColor = parseBoolEnv(v, c.NoColor)
	}},
	{"TUI", []string{"tui"}, func(c *AppConfig, v string) {
		c.TUI = parseBoolEnv(v, c.TUI)
	}},
}

// parseBoolEnv parses a boolean environment variable value.
// Accepts "true", "1", "yes" as true; "false", "0", "no" as false (case-insensitive).
// Returns defaultVal if the value is not recognized.
func parseBoolEnv(val string, defaultVal bool) bool {
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

// applyEnvOverrides applies environment variable values to the configuration
// for any flags that were not explicitly set on the command line.
// This implements the priority: CLI flags > Environment variables > Defaults.
func applyEnvOverrides(config *AppConfig, fs *flag.FlagSet) {
	for _, o := range envOverrides {
		if isFlagSetAny(fs, o.flags...) {
			continue
		}
		if val := os.Getenv(EnvPrefix + o.envKey); val != "" {
			o.apply(config, val)
		}
	}
}
