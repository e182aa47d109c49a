//go:build windows

// File: internal/browser/terminate_windows.go

package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"time"

	"github.com/speedtracer/breaky/internal/procutil"
)

const killTreeTimeout = 30 * time.Second

func prepareCommand(cmd *exec.Cmd) {}

// terminate force-kills the whole process tree rooted at the browser.
func terminate(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	log.Printf("Browser: Trying to kill chrome PID %d", pid)
	out, err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).CombinedOutput()
	if err == nil {
		return nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("taskkill pid %d: %w: %s", pid, err, out)
	}

	log.Printf("Browser: taskkill is not available on this system, killing process tree directly")
	ctx, cancel := context.WithTimeout(context.Background(), killTreeTimeout)
	defer cancel()
	if _, err := procutil.KillTree(ctx, int32(pid)); err != nil {
		return fmt.Errorf("kill process tree %d: %w", pid, err)
	}
	return nil
}
