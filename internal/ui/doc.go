// Package ui holds the color themes shared by the CLI presenter and the
// dashboard. ANSI escape codes are used for the CLI; lipgloss colors for the
// dashboard. Both honor --no-color and the NO_COLOR environment variable.
package ui
