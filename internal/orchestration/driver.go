package orchestration

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agbru/dayrun/internal/config"
	"github.com/agbru/dayrun/internal/daterange"
	apperrors "github.com/agbru/dayrun/internal/errors"
	"github.com/agbru/dayrun/internal/logging"
	"github.com/agbru/dayrun/internal/pipeline"
	"github.com/agbru/dayrun/internal/sysmon"
	"github.com/agbru/dayrun/internal/workspace"
)

const tracerName = "github.com/agbru/dayrun/internal/orchestration"

// Options is everything the driver needs to know about a run.
type Options struct {
	Range    daterange.Range
	Pipeline pipeline.Pipeline

	BinDir   string
	DataDir  string
	WorkDir  string
	CtxtFile string
	PtxtFile string

	// ContinueOnFailure skips the rest of a failing day instead of aborting.
	ContinueOnFailure bool
	// MaxDays caps the number of days processed, 0 means the whole range.
	MaxDays int
	// StopAfter ends the run right after the first execution of this stage.
	StopAfter    string
	StageTimeout time.Duration
}

// OptionsFromConfig builds driver options from a validated configuration and
// a resolved pipeline.
func OptionsFromConfig(cfg config.AppConfig, p pipeline.Pipeline) (Options, error) {
	r, err := cfg.Range()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Range:             r,
		Pipeline:          p,
		BinDir:            cfg.BinDir,
		DataDir:           cfg.DataDir,
		WorkDir:           cfg.WorkDir,
		CtxtFile:          cfg.CtxtFile,
		PtxtFile:          cfg.PtxtFile,
		ContinueOnFailure: cfg.OnFailure == config.OnFailureContinue,
		MaxDays:           cfg.MaxDays,
		StopAfter:         cfg.StopAfter,
		StageTimeout:      cfg.StageTimeout,
	}, nil
}

// PlannedDays returns how many days the run will cover if nothing fails.
func (o Options) PlannedDays() int {
	n := o.Range.Count()
	if o.MaxDays > 0 && o.MaxDays < n {
		return o.MaxDays
	}
	return n
}

// errStopped signals a --stop-after stop internally; Run returns nil for it.
var errStopped = errors.New("stopped after requested stage")

// Driver runs the day loop. A Driver is single use and not safe for
// concurrent use.
type Driver struct {
	opts     Options
	runner   pipeline.Runner
	observer Observer
	logger   logging.Logger
	tracer   trace.Tracer
	sample   func() sysmon.Stats

	ctxt    workspace.Accumulator
	ptxt    workspace.Accumulator
	workdir workspace.WorkDir
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithSampler replaces the system sampler used for per-day debug logs.
func WithSampler(sample func() sysmon.Stats) DriverOption {
	return func(d *Driver) { d.sample = sample }
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) DriverOption {
	return func(d *Driver) { d.tracer = t }
}

// NewDriver creates a driver. A nil observer or logger is replaced by a no-op.
func NewDriver(opts Options, runner pipeline.Runner, observer Observer, logger logging.Logger, options ...DriverOption) *Driver {
	if observer == nil {
		observer = NullObserver{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	d := &Driver{
		opts:     opts,
		runner:   runner,
		observer: observer,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		sample:   sysmon.Sample,
		ctxt:     workspace.NewAccumulator(opts.CtxtFile),
		ptxt:     workspace.NewAccumulator(opts.PtxtFile),
		workdir:  workspace.NewWorkDir(opts.WorkDir),
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Run executes the setup stages and then the day loop.
//
// It returns a StageError when a setup stage fails, or when a day stage fails
// under the abort policy; in that case the working directory is left as the
// failing stage left it. Cancellation of ctx is returned as a StageError
// wrapping the context error when it interrupts a stage, or as the context
// error itself between stages.
func (d *Driver) Run(ctx context.Context) (summary RunSummary, err error) {
	start := time.Now()
	summary = RunSummary{
		RunID:     uuid.NewString(),
		Pipeline:  d.opts.Pipeline.Name,
		TotalDays: d.opts.PlannedDays(),
	}

	base := d.logger
	d.logger = base.With(logging.String("run_id", summary.RunID))
	defer func() { d.logger = base }()

	ctx, span := d.tracer.Start(ctx, "dayrun.run", trace.WithAttributes(
		attribute.String("dayrun.run_id", summary.RunID),
		attribute.String("dayrun.pipeline", summary.Pipeline),
		attribute.Int("dayrun.planned_days", summary.TotalDays),
	))
	defer func() {
		if errors.Is(err, errStopped) {
			err = nil
		}
		summary.Elapsed = time.Since(start)
		endSpan(span, err)
		d.observer.RunFinished(summary, err)
	}()

	d.logger.Info("run started",
		logging.String("pipeline", summary.Pipeline),
		logging.String("begin", daterange.Format(d.opts.Range.Begin)),
		logging.String("end", daterange.Format(d.opts.Range.End)),
		logging.Int("days", summary.TotalDays),
	)

	if err = d.workdir.Ensure(); err != nil {
		return summary, apperrors.WrapError(err, "preparing working directory")
	}

	summary.Setup, err = d.runSetup(ctx)
	if err != nil {
		return summary, err
	}

	for day := range d.opts.Range.Days() {
		if d.opts.MaxDays > 0 && day.Index >= d.opts.MaxDays {
			break
		}
		if err = ctx.Err(); err != nil {
			return summary, err
		}

		res, dayErr := d.runDay(ctx, day, summary.TotalDays)
		summary.Days = append(summary.Days, res)
		if dayErr != nil {
			return summary, dayErr
		}
	}

	d.logger.Info("run finished",
		logging.Int("days", len(summary.Days)),
		logging.Int("failed", summary.Count(DayFailed)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}

func (d *Driver) runSetup(ctx context.Context) ([]pipeline.Result, error) {
	stages := d.opts.Pipeline.Setup
	if len(stages) == 0 {
		return nil, nil
	}
	d.observer.SetupStarted(stages)

	results := make([]pipeline.Result, 0, len(stages))
	for _, s := range stages {
		res, err := d.runStep(ctx, d.logger, pipeline.Step{Stage: s, Hour: -1}, pipeline.Vars{
			WorkDir: d.opts.WorkDir,
			Ptxt:    d.opts.PtxtFile,
			Ctxt:    d.opts.CtxtFile,
			Hour:    -1,
		}, "")
		results = append(results, res)
		if err != nil {
			d.logger.Error("setup stage did not succeed", err, logging.String("stage", s.Name))
			return results, err
		}
		if s.Name == d.opts.StopAfter {
			return results, errStopped
		}
	}
	return results, nil
}

// runDay processes one iteration. The returned error is non-nil when the
// loop must end.
func (d *Driver) runDay(ctx context.Context, day daterange.Day, total int) (res DayResult, err error) {
	start := time.Now()
	res = DayResult{Index: day.Index, Date: day.String()}
	logger := d.logger.With(logging.String("date", res.Date), logging.Int("index", day.Index))

	ctx, span := d.tracer.Start(ctx, "dayrun.day", trace.WithAttributes(
		attribute.Int("dayrun.index", day.Index),
		attribute.String("dayrun.date", res.Date),
	))
	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.String("dayrun.day_status", res.Status.String()))
		endSpan(span, err)
		d.observer.DayFinished(res)
		d.logDay(logger, res)
	}()

	d.observer.DayStarted(day, total)

	if err = d.ctxt.Append(day.Index); err != nil {
		res.Status = DayFailed
		return res, apperrors.WrapError(err, "appending to %s", d.ctxt.Path)
	}
	if err = d.ptxt.Append(day.Index); err != nil {
		res.Status = DayFailed
		return res, apperrors.WrapError(err, "appending to %s", d.ptxt.Path)
	}

	vars := pipeline.Vars{
		Input:   filepath.Join(d.opts.DataDir, res.Date+".txt"),
		Date:    res.Date,
		WorkDir: d.opts.WorkDir,
		Ptxt:    d.opts.PtxtFile,
		Ctxt:    d.opts.CtxtFile,
		Index:   day.Index,
	}

	for _, step := range d.opts.Pipeline.DaySteps() {
		vars.Hour = step.Hour
		stageRes, stageErr := d.runStep(ctx, logger, step, vars, res.Date)
		res.Stages = append(res.Stages, stageRes)

		if stageErr != nil {
			switch {
			case stageRes.Status == pipeline.Canceled || ctx.Err() != nil:
				res.Status = DayCanceled
				return res, stageErr
			case !d.opts.ContinueOnFailure:
				res.Status = DayFailed
				return res, stageErr
			}
			res.Status = DayFailed
			logger.Error("stage did not succeed, skipping rest of day", stageErr,
				logging.String("stage", stageRes.Name()))
			break
		}

		if step.Stage.Name == d.opts.StopAfter {
			res.Status = DayStopped
			logger.Info("stopping after requested stage", logging.String("stage", step.Stage.Name))
			return res, errStopped
		}
	}

	if err = d.workdir.Reset(); err != nil {
		if res.Status == DayCompleted {
			res.Status = DayFailed
		}
		return res, apperrors.WrapError(err, "resetting working directory")
	}
	return res, nil
}

func (d *Driver) runStep(ctx context.Context, logger logging.Logger, step pipeline.Step, vars pipeline.Vars, date string) (pipeline.Result, error) {
	inv := pipeline.Invocation{
		Step:    step,
		Path:    pipeline.Resolve(d.opts.BinDir, step.Stage.Command),
		Args:    step.Stage.Expand(vars),
		Date:    date,
		Timeout: d.opts.StageTimeout,
	}

	ctx, span := d.tracer.Start(ctx, "dayrun.stage", trace.WithAttributes(
		attribute.String("dayrun.stage", step.Label()),
		attribute.String("dayrun.command", inv.Path),
	))
	d.observer.StageStarted(inv)
	logger.Debug("stage started", logging.String("stage", step.Label()), logging.String("cmd", inv.CommandLine()))

	res, err := d.runner.Run(ctx, inv)
	res.Invocation = inv

	span.SetAttributes(
		attribute.String("dayrun.status", res.Status.String()),
		attribute.Int("dayrun.exit_code", res.ExitCode),
	)
	endSpan(span, err)
	d.observer.StageFinished(res)
	logger.Debug("stage finished",
		logging.String("stage", step.Label()),
		logging.String("status", res.Status.String()),
		logging.Int("exit_code", res.ExitCode),
		logging.Duration("duration", res.Duration),
	)
	return res, err
}

func (d *Driver) logDay(logger logging.Logger, res DayResult) {
	stats := d.sample()
	fields := []logging.Field{
		logging.String("status", res.Status.String()),
		logging.Duration("duration", res.Duration),
	}
	logger.Debug("day finished", append(fields, stats.Fields()...)...)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, errStopped) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
