//go:build linux || darwin

package execution

import (
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// prepareCommand places the worker in its own process group so everything it spawns can be killed at once.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	return errors.WithStack(unix.Kill(-cmd.Process.Pid, unix.SIGKILL))
}

// killedBySignal indicates whether the process behind err was terminated by a signal.
func killedBySignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled()
}

// LimitCPU caps the CPU time of the current process. The kernel signals the process once the limit is reached.
func LimitCPU(seconds int) error {
	if seconds <= 0 {
		return nil
	}
	limit := &unix.Rlimit{Cur: uint64(seconds), Max: uint64(seconds) + 1}
	return errors.WithStack(unix.Setrlimit(unix.RLIMIT_CPU, limit))
}
