//go:build unix

// File: internal/browser/terminate_unix.go

package browser

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// prepareCommand puts the browser in its own process group so renderer and
// helper processes die with it.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	// Fall back to the leader alone.
	if killErr := cmd.Process.Kill(); killErr != nil {
		return fmt.Errorf("kill process group %d: %v; kill pid: %w", pid, err, killErr)
	}
	return nil
}
