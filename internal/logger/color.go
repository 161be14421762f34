package logger

import (
	"os"

	"golang.org/x/term"
)

// colorEnabled reports whether output to f should carry ANSI colors: f is a
// terminal, NO_COLOR is unset and TERM is not "dumb".
func colorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd())) // #nosec G115 - file descriptors are small integers
}
