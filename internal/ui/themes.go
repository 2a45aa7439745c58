package ui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme is a set of ANSI escape codes keyed by role.
type Theme struct {
	Name      string
	Primary   string // stage names, banners
	Secondary string // captured output, hints
	Success   string
	Warning   string
	Error     string
	Info      string // dates, durations
	Bold      string
	Underline string
	Reset     string
}

var (
	// DarkTheme suits dark terminal backgrounds.
	DarkTheme = Theme{
		Name:      "dark",
		Primary:   "\033[38;5;39m",
		Secondary: "\033[38;5;245m",
		Success:   "\033[38;5;82m",
		Warning:   "\033[38;5;220m",
		Error:     "\033[38;5;196m",
		Info:      "\033[38;5;141m",
		Bold:      "\033[1m",
		Underline: "\033[4m",
		Reset:     "\033[0m",
	}

	// LightTheme uses darker tones for light backgrounds.
	LightTheme = Theme{
		Name:      "light",
		Primary:   "\033[38;5;27m",
		Secondary: "\033[38;5;240m",
		Success:   "\033[38;5;28m",
		Warning:   "\033[38;5;130m",
		Error:     "\033[38;5;124m",
		Info:      "\033[38;5;54m",
		Bold:      "\033[1m",
		Underline: "\033[4m",
		Reset:     "\033[0m",
	}

	// NoColorTheme emits no escape codes at all.
	NoColorTheme = Theme{Name: "none"}

	themes = map[string]Theme{
		DarkTheme.Name:    DarkTheme,
		LightTheme.Name:   LightTheme,
		NoColorTheme.Name: NoColorTheme,
	}

	themeMutex   sync.RWMutex
	currentTheme = DarkTheme
)

// TUITheme is the dashboard palette.
type TUITheme struct {
	Text    lipgloss.TerminalColor
	Border  lipgloss.TerminalColor
	Accent  lipgloss.TerminalColor
	Success lipgloss.TerminalColor
	Warning lipgloss.TerminalColor
	Error   lipgloss.TerminalColor
	Dim     lipgloss.TerminalColor
	Info    lipgloss.TerminalColor
}

var (
	// DarkTUITheme is the default dashboard palette.
	DarkTUITheme = TUITheme{
		Text:    lipgloss.Color("#E0E0E0"),
		Border:  lipgloss.Color("#3A7BD5"),
		Accent:  lipgloss.Color("#00A8E8"),
		Success: lipgloss.Color("#9ECE6A"),
		Warning: lipgloss.Color("#FFB347"),
		Error:   lipgloss.Color("#FF4444"),
		Dim:     lipgloss.Color("#666666"),
		Info:    lipgloss.Color("#B48EAD"),
	}

	// NoColorTUITheme renders with the terminal defaults.
	NoColorTUITheme = TUITheme{
		Text:    lipgloss.NoColor{},
		Border:  lipgloss.NoColor{},
		Accent:  lipgloss.NoColor{},
		Success: lipgloss.NoColor{},
		Warning: lipgloss.NoColor{},
		Error:   lipgloss.NoColor{},
		Dim:     lipgloss.NoColor{},
		Info:    lipgloss.NoColor{},
	}
)

// GetCurrentTheme returns the active theme.
func GetCurrentTheme() Theme {
	themeMutex.RLock()
	defer themeMutex.RUnlock()
	return currentTheme
}

// GetCurrentTUITheme returns the dashboard palette matching the active theme.
func GetCurrentTUITheme() TUITheme {
	if GetCurrentTheme().Name == NoColorTheme.Name {
		return NoColorTUITheme
	}
	return DarkTUITheme
}

// SetCurrentTheme replaces the active theme. Tests use it to restore state.
func SetCurrentTheme(t Theme) {
	themeMutex.Lock()
	defer themeMutex.Unlock()
	currentTheme = t
}

// SetTheme activates a theme by name ("dark", "light", "none"). Unknown names
// select the dark theme.
func SetTheme(name string) {
	t, ok := themes[name]
	if !ok {
		t = DarkTheme
	}
	SetCurrentTheme(t)
}

// ThemeEnv names the environment variable selecting the CLI theme.
const ThemeEnv = "DAYRUN_THEME"

// InitTheme picks the startup theme. Colors are disabled when noColor is set
// or NO_COLOR is present in the environment (https://no-color.org/).
// Otherwise DAYRUN_THEME may select "light" or "none".
func InitTheme(noColor bool) {
	if _, set := os.LookupEnv("NO_COLOR"); noColor || set {
		SetCurrentTheme(NoColorTheme)
		return
	}
	if name := os.Getenv(ThemeEnv); name != "" {
		SetTheme(name)
		return
	}
	SetCurrentTheme(DarkTheme)
}
