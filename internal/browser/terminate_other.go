//go:build !unix && !windows

// File: internal/browser/terminate_other.go

package browser

import "os/exec"

func prepareCommand(cmd *exec.Cmd) {}

func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
