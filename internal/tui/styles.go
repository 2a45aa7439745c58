package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agbru/dayrun/internal/ui"
)

// Dashboard styles, rebuilt from the ui theme by initTUIStyles.
var (
	panelStyle       lipgloss.Style
	headerStyle      lipgloss.Style
	titleStyle       lipgloss.Style
	dimStyle         lipgloss.Style
	accentStyle      lipgloss.Style
	labelStyle       lipgloss.Style
	valueStyle       lipgloss.Style
	successStyle     lipgloss.Style
	warningStyle     lipgloss.Style
	errorStyle       lipgloss.Style
	cpuSparkStyle    lipgloss.Style
	memSparkStyle    lipgloss.Style
	progressBarStyle lipgloss.Style
)

func init() {
	initTUIStyles()
}

// initTUIStyles rebuilds the styles. Run calls it again after the theme has
// been chosen from the flags.
func initTUIStyles() {
	t := ui.GetCurrentTUITheme()

	panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Foreground(t.Text).
		Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Accent).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	dimStyle = lipgloss.NewStyle().Foreground(t.Dim)
	accentStyle = lipgloss.NewStyle().Foreground(t.Accent)
	labelStyle = lipgloss.NewStyle().Foreground(t.Dim)
	valueStyle = lipgloss.NewStyle().Foreground(t.Text).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(t.Success)
	warningStyle = lipgloss.NewStyle().Foreground(t.Warning)
	errorStyle = lipgloss.NewStyle().Foreground(t.Error).Bold(true)
	cpuSparkStyle = lipgloss.NewStyle().Foreground(t.Info)
	memSparkStyle = lipgloss.NewStyle().Foreground(t.Warning)
	progressBarStyle = lipgloss.NewStyle().Foreground(t.Success)
}
