// Package format holds the display helpers shared by the CLI and the TUI.
package format

import (
	"fmt"
	"time"
)

// FormatExecutionDuration formats a stage or run duration for display.
// Sub-millisecond durations are shown in microseconds, sub-second ones in
// milliseconds, and anything longer is rounded to the millisecond.
func FormatExecutionDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(time.Millisecond).String()
	}
}

// FormatETA renders a remaining-time estimate with at most two units.
func FormatETA(eta time.Duration) string {
	if eta <= 0 {
		return "calculating..."
	}
	if eta < time.Second {
		return "< 1s"
	}

	days := int(eta / (24 * time.Hour))
	hours := int(eta/time.Hour) % 24
	minutes := int(eta/time.Minute) % 60
	seconds := int(eta/time.Second) % 60

	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%dd%dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case minutes > 0 && seconds > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
