//go:build unix

package build

import (
	"os/exec"
	"syscall"
)

// ownProcessGroup starts cmd in a new process group and makes context
// cancellation kill the whole group, so children of the build command
// cannot keep running (and holding the output pipes) after it is gone.
func ownProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
