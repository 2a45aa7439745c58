// # Naming Conventions
//
//   - Display* functions write colored output to an [io.Writer].
//   - Format* functions return a string without performing I/O.
//   - Write* functions create files.

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/agbru/dayrun/internal/format"
	"github.com/agbru/dayrun/internal/orchestration"
	"github.com/agbru/dayrun/internal/pipeline"
	"github.com/agbru/dayrun/internal/ui"
)

// maxListedDays bounds the number of non-completed days listed in the
// terminal summary; the report file always lists every day.
const maxListedDays = 20

// DisplaySummary prints the end-of-run summary: counts, setup results and a
// table of the days that did not complete.
func DisplaySummary(out io.Writer, summary orchestration.RunSummary, err error) {
	fmt.Fprintf(out, "\n%s--- Run Summary ---%s\n", ui.ColorBold(), ui.ColorReset())
	fmt.Fprintf(out, "Run ID:    %s\n", summary.RunID)
	fmt.Fprintf(out, "Pipeline:  %s\n", summary.Pipeline)
	fmt.Fprintf(out, "Days:      %d/%d (%s completed, %s failed)\n",
		len(summary.Days), summary.TotalDays,
		ui.Paint(ui.ColorGreen(), fmt.Sprint(summary.Count(orchestration.DayCompleted))),
		ui.Paint(ui.ColorRed(), fmt.Sprint(summary.Count(orchestration.DayFailed))))
	fmt.Fprintf(out, "Elapsed:   %s%s%s\n", ui.ColorYellow(), format.FormatExecutionDuration(summary.Elapsed), ui.ColorReset())

	var listed []orchestration.DayResult
	for _, d := range summary.Days {
		if d.Status != orchestration.DayCompleted {
			listed = append(listed, d)
		}
	}
	if len(listed) > 0 {
		fmt.Fprintf(out, "\n%sIndex%s  %sDate%s        %sStatus%s     %sStage%s\n",
			ui.ColorUnderline(), ui.ColorReset(), ui.ColorUnderline(), ui.ColorReset(),
			ui.ColorUnderline(), ui.ColorReset(), ui.ColorUnderline(), ui.ColorReset())
		for i, d := range listed {
			if i == maxListedDays {
				fmt.Fprintf(out, "... and %d more\n", len(listed)-maxListedDays)
				break
			}
			fmt.Fprintf(out, "%-5d  %-10s  %s%s  %s\n",
				d.Index, d.Date, paintDayStatus(d.Status), padRight("", 9-len(d.Status.String())), failedStage(d))
		}
	}

	if err != nil {
		fmt.Fprintf(out, "\n%sStatus: Failure.%s %v\n", ui.ColorRed(), ui.ColorReset(), err)
		return
	}
	fmt.Fprintf(out, "\n%sStatus: Success.%s\n", ui.ColorGreen(), ui.ColorReset())
}

// WriteRunReport writes a plain-text report of the run: a commented header
// followed by one CSV line per reached day.
func WriteRunReport(path string, summary orchestration.RunSummary, runErr error) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := FormatRunReport(file, summary, runErr, time.Now()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return file.Close()
}

// FormatRunReport writes the report body to w.
func FormatRunReport(w io.Writer, summary orchestration.RunSummary, runErr error, generated time.Time) error {
	status := "success"
	if runErr != nil {
		status = "failure: " + runErr.Error()
	}
	_, err := fmt.Fprintf(w,
		"# dayrun run report\n# Generated: %s\n# Run ID: %s\n# Pipeline: %s\n# Days: %d/%d\n# Elapsed: %s\n# Status: %s\n",
		generated.Format(time.RFC3339), summary.RunID, summary.Pipeline,
		len(summary.Days), summary.TotalDays, summary.Elapsed, status)
	if err != nil {
		return err
	}
	for _, r := range summary.Setup {
		if _, err := fmt.Fprintf(w, "# Setup %s: %s (exit %d) in %s\n", r.Name(), r.Status, r.ExitCode, r.Duration); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "\nindex,date,status,duration_seconds,stages,failed_stage"); err != nil {
		return err
	}
	for _, d := range summary.Days {
		_, err := fmt.Fprintf(w, "%d,%s,%s,%.3f,%d,%s\n",
			d.Index, d.Date, d.Status, d.Duration.Seconds(), len(d.Stages), failedStage(d))
		if err != nil {
			return err
		}
	}
	return nil
}

func failedStage(d orchestration.DayResult) string {
	if r, ok := d.Failure(); ok {
		return stageLabel(r)
	}
	return ""
}

func stageLabel(r pipeline.Result) string {
	return fmt.Sprintf("%s (%s)", r.Name(), r.Status)
}

// padRight returns s followed by length spaces.
func padRight(s string, length int) string {
	if length <= 0 {
		return s
	}
	return s + fmt.Sprintf("%*s", length, "")
}
