package ui

// Color helpers return the escape code of the active theme for a role, or
// "" when colors are disabled.

func ColorRed() string       { return GetCurrentTheme().Error }
func ColorGreen() string     { return GetCurrentTheme().Success }
func ColorYellow() string    { return GetCurrentTheme().Warning }
func ColorBlue() string      { return GetCurrentTheme().Primary }
func ColorMagenta() string   { return GetCurrentTheme().Info }
func ColorGrey() string      { return GetCurrentTheme().Secondary }
func ColorBold() string      { return GetCurrentTheme().Bold }
func ColorUnderline() string { return GetCurrentTheme().Underline }
func ColorReset() string     { return GetCurrentTheme().Reset }

// Paint wraps s in the given color and a reset. It returns s unchanged when
// color is empty.
func Paint(color, s string) string {
	if color == "" {
		return s
	}
	return color + s + ColorReset()
}
