package ui

import (
	"fmt"
	"io"
)

// Logo is printed above interactive commands
const Logo = `
  ┌─┐ tweetpull
  └─┘ posts → parquet
`

// Color functions for terminal output
var (
	Cyan   = colorize("\033[36m%s\033[0m")
	Yellow = colorize("\033[33m%s\033[0m")
	Red    = colorize("\033[31m%s\033[0m")
	Green  = colorize("\033[32m%s\033[0m")
	Dim    = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the logo in color
func PrintLogo(w io.Writer) {
	fmt.Fprint(w, Cyan(Logo))
}

// PrintSuccess prints a success message in green
func PrintSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, Green(fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, Yellow(fmt.Sprintf(format, args...)))
}

// PrintInfo prints a label and value
func PrintInfo(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s: %s\n", Cyan(label), Yellow(value))
}
