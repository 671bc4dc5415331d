//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess puts the child in its own process group so helpers it
// forks are killed with it.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err == nil {
		return nil
	}
	return cmd.Process.Kill()
}
