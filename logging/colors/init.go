package colors

// init makes sure ANSI coloring is enabled where the console supports it.
func init() {
	EnableColor()
}
