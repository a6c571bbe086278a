//go:build !windows

package colors

import "fmt"

// enabled reports whether ANSI escape codes are emitted. Unix terminals support them by default.
var enabled = true

// EnableColor turns ANSI coloring on.
func EnableColor() { enabled = true }

// DisableColor turns ANSI coloring off, e.g. when output is redirected or --no-color is set.
func DisableColor() { enabled = false }

// Colorize returns the string s wrapped in ANSI code c
func Colorize(s any, c Color) string {
	if !enabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
