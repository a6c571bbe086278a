package exitcodes

const (
	// ================================
	// Platform-universal exit codes
	// ================================

	// ExitCodeSuccess indicates no errors or failures had occurred.
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates some type of general error occurred.
	ExitCodeGeneralError = 1

	// ================================
	// Application-specific exit codes
	// ================================
	// Note: Despite not being standardized, exit codes 2-5 are often used for common use cases, so we avoid them.

	// ExitCodeGenerationError indicates that a generation session failed. The error has already been logged when it
	// reaches the top-level.
	ExitCodeGenerationError = 6

	// ExitCodeIncompleteCoverage indicates a replayed suite did not cover every goal of its target.
	ExitCodeIncompleteCoverage = 7
)
