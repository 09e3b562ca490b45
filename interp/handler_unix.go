//go:build unix

package interp

import (
	"os/exec"
	"syscall"
)

// prepareCommand sets the SysProcAttr for the command to join the process
// group pgid, or to start a new one (led by the command itself) when pgid
// is 0.
func prepareCommand(cmd *exec.Cmd, pgid int) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
}

// interruptCommand interrupts the whole process group.
func interruptCommand(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGINT)
}

// killCommand kills the whole process group.
func killCommand(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
