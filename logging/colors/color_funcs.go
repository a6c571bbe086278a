package colors

import "fmt"

// ColorFunc is an alias type for a coloring function that accepts anything and returns a colorized string
type ColorFunc = func(s any) string

// Reset returns the input as a plain string. It resets the color context in multi-part log messages.
func Reset(s any) string {
	return fmt.Sprintf("%v", s)
}

// bold wraps an already colorized string with the bold code.
func bold(s any, c Color) string {
	return Colorize(Colorize(s, c), BOLD)
}

// Red returns a red-colorized string of the provided input
func Red(s any) string { return Colorize(s, RED) }

// RedBold returns a red-bold-colorized string of the provided input
func RedBold(s any) string { return bold(s, RED) }

// Green returns a green-colorized string of the provided input
func Green(s any) string { return Colorize(s, GREEN) }

// GreenBold returns a green-bold-colorized string of the provided input
func GreenBold(s any) string { return bold(s, GREEN) }

// Yellow returns a yellow-colorized string of the provided input
func Yellow(s any) string { return Colorize(s, YELLOW) }

// YellowBold returns a yellow-bold-colorized string of the provided input
func YellowBold(s any) string { return bold(s, YELLOW) }

// Blue returns a blue-colorized string of the provided input
func Blue(s any) string { return Colorize(s, BLUE) }

// BlueBold returns a blue-bold-colorized string of the provided input
func BlueBold(s any) string { return bold(s, BLUE) }

// Magenta returns a magenta-colorized string of the provided input
func Magenta(s any) string { return Colorize(s, MAGENTA) }

// Cyan returns a cyan-colorized string of the provided input
func Cyan(s any) string { return Colorize(s, CYAN) }

// CyanBold returns a cyan-bold-colorized string of the provided input
func CyanBold(s any) string { return bold(s, CYAN) }

// Bold returns a bolded string of the provided input
func Bold(s any) string { return Colorize(s, BOLD) }

// DarkGray returns a dark-gray-colorized string of the provided input
func DarkGray(s any) string { return Colorize(s, DARK_GRAY) }
