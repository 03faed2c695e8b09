package output

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	// Outcome colors
	Merged   = color.New(color.FgGreen)
	UpToDate = color.New(color.Faint)
	Proposed = color.New(color.FgCyan)
	Failed   = color.New(color.FgRed)
	TimedOut = color.New(color.FgMagenta)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header  = color.New(color.FgWhite, color.Bold)
	Package = color.New(color.FgBlue, color.Bold)
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// StateColor returns the color used to render a package state
func StateColor(state string) *color.Color {
	switch state {
	case "MERGED":
		return Merged
	case "NO_UPDATE":
		return UpToDate
	case "PROPOSED", "AWAITING_CI", "CHECKING":
		return Proposed
	case "PROPOSAL_FAILED", "MERGE_FAILED", "CI_FAILED":
		return Failed
	case "TIMED_OUT":
		return TimedOut
	default:
		return color.New(color.Reset)
	}
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// FormatState formats a state string with appropriate color
func FormatState(state string) string {
	return StateColor(state).Sprintf("[%s]", state)
}

// FormatPackage formats a package name with color
func FormatPackage(pkg string) string {
	return Package.Sprint(pkg)
}

// FormatVersionChange renders "old → new", or just the version when nothing changes
func FormatVersionChange(current, target string) string {
	switch {
	case target == "" || target == current:
		return current
	case current == "":
		return target
	default:
		return fmt.Sprintf("%s → %s", current, target)
	}
}
