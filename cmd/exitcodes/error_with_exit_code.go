// Package exitcodes maps errors reaching the top-level of the CLI to process exit codes.
package exitcodes

import "github.com/pkg/errors"

// ErrorWithExitCode wraps an error with the exit code the process should end with.
type ErrorWithExitCode struct {
	err      error
	exitCode int
}

// NewErrorWithExitCode returns an ErrorWithExitCode wrapping err.
func NewErrorWithExitCode(err error, exitCode int) *ErrorWithExitCode {
	return &ErrorWithExitCode{
		err:      err,
		exitCode: exitCode,
	}
}

// Error returns the message of the wrapped error.
func (e *ErrorWithExitCode) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

// Unwrap returns the wrapped error.
func (e *ErrorWithExitCode) Unwrap() error {
	return e.err
}

// ExitCode returns the exit code carried by the error.
func (e *ErrorWithExitCode) ExitCode() int {
	return e.exitCode
}

// GetInnerErrorAndExitCode returns the error the process ends with and its exit code: ExitCodeSuccess for nil,
// the carried code if an ErrorWithExitCode is found in the chain of err, and ExitCodeGeneralError otherwise.
func GetInnerErrorAndExitCode(err error) (error, int) {
	if err == nil {
		return nil, ExitCodeSuccess
	}
	var withExitCode *ErrorWithExitCode
	if errors.As(err, &withExitCode) {
		return withExitCode.err, withExitCode.exitCode
	}
	return err, ExitCodeGeneralError
}
