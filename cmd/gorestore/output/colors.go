// Package output provides console output formatting and colorization.
package output

import (
	"os"

	"github.com/fatih/color"
)

// Color schemes
var (
	ColorSuccess = color.New(color.FgGreen)
	ColorError   = color.New(color.FgRed)
	ColorWarning = color.New(color.FgYellow)
	ColorInfo    = color.New(color.FgCyan)
	ColorDebug   = color.New(color.FgWhite)
)

// IsColorEnabled checks if color output should be enabled
func IsColorEnabled() bool {
	return colorEnabled(DefaultTTYDetector, os.Stdout, os.Getenv)
}

func colorEnabled(tty TTYDetector, out *os.File, getenv func(string) string) bool {
	if !tty.IsTTY(out) {
		return false
	}
	if getenv("NO_COLOR") != "" {
		return false
	}
	term := getenv("TERM")
	return term != "dumb" && term != ""
}

// DisableColors disables all color output
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output
func EnableColors() {
	color.NoColor = false
}
