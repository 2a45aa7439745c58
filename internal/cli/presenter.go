package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/briandowns/spinner"

	"github.com/agbru/dayrun/internal/daterange"
	"github.com/agbru/dayrun/internal/format"
	"github.com/agbru/dayrun/internal/orchestration"
	"github.com/agbru/dayrun/internal/pipeline"
	"github.com/agbru/dayrun/internal/ui"
)

// ProgressBarWidth is the width in characters of the day progress bar.
const ProgressBarWidth = 30

// PresenterOptions configures a Presenter.
type PresenterOptions struct {
	// Quiet prints only the final summary line.
	Quiet bool
	// Verbose prints the output of succeeded stages too.
	Verbose bool
	// Spinner animates a spinner while a stage runs. Only set it when out is
	// a terminal.
	Spinner bool
}

// Presenter is the line-oriented orchestration.Observer used when the
// dashboard is off. Every stage gets a banner, its status and its output.
type Presenter struct {
	out      io.Writer
	opts     PresenterOptions
	spinner  Spinner
	progress *orchestration.ProgressAggregator
}

var _ orchestration.Observer = (*Presenter)(nil)

// NewPresenter creates a presenter writing to out.
func NewPresenter(out io.Writer, opts PresenterOptions) *Presenter {
	var s Spinner = nopSpinner{}
	if opts.Spinner && !opts.Quiet {
		s = newSpinner(spinner.WithWriter(out))
	}
	return &Presenter{out: out, opts: opts, spinner: s}
}

// SetupStarted announces the setup stages.
func (p *Presenter) SetupStarted(stages []pipeline.Stage) {
	if p.opts.Quiet {
		return
	}
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	fmt.Fprintf(p.out, "%sSetup:%s %s\n", ui.ColorBold(), ui.ColorReset(), strings.Join(names, ", "))
}

// DayStarted prints the day header.
func (p *Presenter) DayStarted(day daterange.Day, total int) {
	if p.progress == nil {
		p.progress = orchestration.NewProgressAggregator(total)
	}
	if p.opts.Quiet {
		return
	}
	fmt.Fprintf(p.out, "\n%s--- Day %d/%d: %s%s (i=%d) ---%s\n",
		ui.ColorBold(), day.Index+1, total, ui.ColorMagenta(), day.String(), day.Index, ui.ColorReset())
}

// StageStarted prints the stage banner and starts the spinner.
func (p *Presenter) StageStarted(inv pipeline.Invocation) {
	if p.opts.Quiet {
		return
	}
	fmt.Fprintln(p.out, FormatBanner(inv))
	p.spinner.UpdateSuffix(" running " + inv.Step.Label())
	p.spinner.Start()
}

// StageFinished stops the spinner and prints the outcome.
func (p *Presenter) StageFinished(res pipeline.Result) {
	if p.opts.Quiet {
		return
	}
	p.spinner.Stop()
	fmt.Fprintln(p.out, FormatStageStatus(res))
	if res.Output != "" && (p.opts.Verbose || !res.Status.OK()) {
		fmt.Fprintln(p.out, ui.Paint(ui.ColorGrey(), indent(res.Output, "    ")))
	}
	if res.Err != nil && !res.Status.OK() {
		fmt.Fprintf(p.out, "    %s%v%s\n", ui.ColorRed(), res.Err, ui.ColorReset())
	}
}

// DayFinished prints the day outcome and the overall progress.
func (p *Presenter) DayFinished(day orchestration.DayResult) {
	if p.progress == nil {
		return
	}
	prog := p.progress.DayFinished()
	if p.opts.Quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s in %s  %s\n",
		day.Date, paintDayStatus(day.Status), format.FormatExecutionDuration(day.Duration),
		format.FormatProgressBarWithETA(prog.Fraction, prog.ETA, ProgressBarWidth))
}

// RunFinished prints the summary.
func (p *Presenter) RunFinished(summary orchestration.RunSummary, err error) {
	p.spinner.Stop()
	if p.opts.Quiet {
		fmt.Fprintln(p.out, FormatQuietSummary(summary, err))
		return
	}
	DisplaySummary(p.out, summary, err)
}

// FormatBanner renders the stage banner, e.g. "=== bin/Step1_CS1 ===".
func FormatBanner(inv pipeline.Invocation) string {
	name := inv.Path
	if inv.Step.Hour >= 0 {
		name = fmt.Sprintf("%s [h=%d]", inv.Path, inv.Step.Hour)
	}
	return fmt.Sprintf("%s=== %s ===%s", ui.ColorBlue(), name, ui.ColorReset())
}

// FormatStageStatus renders the status line of a finished stage.
func FormatStageStatus(res pipeline.Result) string {
	mark, color := "✓", ui.ColorGreen()
	if !res.Status.OK() {
		mark, color = "✗", ui.ColorRed()
	}
	return fmt.Sprintf("%s%s %s%s (exit %d) in %s",
		color, mark, res.Status, ui.ColorReset(), res.ExitCode, format.FormatExecutionDuration(res.Duration))
}

// FormatQuietSummary is the single summary line printed in quiet mode.
func FormatQuietSummary(summary orchestration.RunSummary, err error) string {
	line := fmt.Sprintf("%d/%d days: %d completed, %d failed in %s",
		len(summary.Days), summary.TotalDays,
		summary.Count(orchestration.DayCompleted), summary.Count(orchestration.DayFailed),
		format.FormatExecutionDuration(summary.Elapsed))
	if err != nil {
		line += ": " + err.Error()
	}
	return line
}

func paintDayStatus(s orchestration.DayStatus) string {
	switch s {
	case orchestration.DayCompleted:
		return ui.Paint(ui.ColorGreen(), s.String())
	case orchestration.DayStopped:
		return ui.Paint(ui.ColorYellow(), s.String())
	default:
		return ui.Paint(ui.ColorRed(), s.String())
	}
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
