package ui

import (
	"fmt"
	"io"
	"os"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔════════════════════════════════════════════════════════════╗
    ║ ██████╗ ███████╗██████╗ ██████╗ ██╗████████╗               ║
    ║ ██╔══██╗██╔════╝██╔══██╗██╔══██╗██║╚══██╔══╝               ║
    ║ ██████╔╝█████╗  ██║  ██║██║  ██║██║   ██║    CRAWLER       ║
    ║ ██╔══██╗██╔══╝  ██║  ██║██║  ██║██║   ██║                  ║
    ║ ██║  ██║███████╗██████╔╝██████╔╝██║   ██║                  ║
    ║ ╚═╝  ╚═╝╚══════╝╚═════╝ ╚═════╝ ╚═╝   ╚═╝                  ║
    ║          HISTORY / BACKFILL / LIVE SUBMISSION ARCHIVER     ║
    ╚════════════════════════════════════════════════════════════╝
`

var (
	out     io.Writer = os.Stdout
	quiet   bool
	noColor bool
)

// SetOutput redirects everything the package prints
func SetOutput(w io.Writer) {
	out = w
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	quiet = q
}

// SetNoColor disables ANSI colors
func SetNoColor(n bool) {
	noColor = n
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if noColor {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	if quiet {
		return
	}
	fmt.Fprint(out, Cyan(ASCIILogo))
}

// PrintError prints an error message in red. Errors print in quiet mode too.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(out, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(out, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if quiet {
		return
	}
	fmt.Fprintln(out, Green(msg))
}

// PrintInfo prints an info message in cyan
func PrintInfo(label string, value string) {
	if quiet {
		return
	}
	fmt.Fprintf(out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if quiet {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(out, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(out, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if quiet {
		return
	}
	fmt.Fprintln(out, Magenta(msg))
}
