package restore

import (
	"github.com/fatih/color"
)

// Console interface for output (injected from CLI). Error and Warning
// terminate the line themselves.
type Console interface {
	Printf(format string, args ...any)
	Error(format string, args ...any)
	Warning(format string, args ...any)
}

// Report prints one line per project followed by its diagnostics. Colors are
// used unless color.NoColor is set.
func Report(console Console, summaries []*RestoreSummary) {
	colorize := !color.NoColor
	for _, s := range summaries {
		name := s.DescriptorPath
		if name == "" {
			name = s.ProjectID
		}

		switch {
		case !s.Success:
			console.Printf("  Failed to restore %s (in %d ms)\n", name, s.Elapsed.Milliseconds())
		case s.NoOpRestore:
			console.Printf("  All projects are up-to-date for restore: %s\n", name)
		default:
			console.Printf("  Restored %s: %d package(s) installed (in %d ms)\n", name, s.InstallCount, s.Elapsed.Milliseconds())
		}

		for _, w := range s.Warnings {
			console.Warning("    %s", w.FormatError(colorize))
		}
		for _, e := range s.Errors {
			console.Error("    %s", e.FormatError(colorize))
		}
	}
}
