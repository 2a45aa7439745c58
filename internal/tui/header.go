package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/agbru/dayrun/internal/format"
)

// HeaderModel renders the top bar: title, pipeline, state and elapsed time.
type HeaderModel struct {
	startTime time.Time
	endTime   time.Time
	version   string
	pipeline  string
	state     string
	width     int
}

// NewHeaderModel creates a header whose timer starts now.
func NewHeaderModel(version, pipelineName string) HeaderModel {
	return HeaderModel{startTime: time.Now(), version: version, pipeline: pipelineName, state: "running"}
}

// SetState changes the state label ("running", "done", "failed", ...).
func (h *HeaderModel) SetState(state string) { h.state = state }

// SetDone freezes the elapsed timer.
func (h *HeaderModel) SetDone() {
	if h.endTime.IsZero() {
		h.endTime = time.Now()
	}
}

// SetWidth updates the available width.
func (h *HeaderModel) SetWidth(w int) { h.width = w }

// Elapsed returns the running or frozen elapsed time.
func (h HeaderModel) Elapsed() time.Duration {
	if !h.endTime.IsZero() {
		return h.endTime.Sub(h.startTime)
	}
	return time.Since(h.startTime)
}

// View renders the header.
func (h HeaderModel) View() string {
	title := "dayrun"
	if h.version != "" && h.version != "dev" {
		title += " " + h.version
	}
	sep := dimStyle.Render(" | ")
	left := titleStyle.Render(title) + sep +
		accentStyle.Render(h.pipeline) + sep +
		h.stateStyle().Render(h.state) + sep +
		accentStyle.Render(fmt.Sprintf("Elapsed: %s", format.FormatExecutionDuration(h.Elapsed().Round(time.Second))))

	gap := max(h.width-2-lipgloss.Width(left), 0)
	return headerStyle.Width(h.width).Render(left + strings.Repeat(" ", gap))
}

func (h HeaderModel) stateStyle() lipgloss.Style {
	switch h.state {
	case "done":
		return successStyle
	case "failed", "canceled":
		return errorStyle
	case "paused":
		return warningStyle
	}
	return accentStyle
}
