//go:build !linux && !darwin

package execution

import (
	"os/exec"

	"github.com/pkg/errors"
)

func prepareCommand(*exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	return errors.WithStack(cmd.Process.Kill())
}

func killedBySignal(error) bool {
	return false
}

// LimitCPU is not supported on this platform and only accepts a disabled limit.
func LimitCPU(seconds int) error {
	if seconds > 0 {
		return errors.New("CPU limits are not supported on this platform")
	}
	return nil
}
