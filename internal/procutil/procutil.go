// File: internal/procutil/procutil.go

// Package procutil finds and kills browser processes left behind by earlier
// runs.
package procutil

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const (
	pollInterval    = 100 * time.Millisecond
	exitWaitTimeout = 5 * time.Second
)

// NormalizePath formats paths consistently so they can be compared.
func NormalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
	}
	return path
}

// FindByExecutable returns every process whose executable is path. Processes
// we are not allowed to inspect are skipped.
func FindByExecutable(ctx context.Context, path string) ([]*process.Process, error) {
	want := NormalizePath(path)
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var matches []*process.Process
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		if NormalizePath(exe) == want {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// KillTree kills pid and every descendant, parent first so it cannot respawn
// its children. It returns how many processes were killed.
func KillTree(ctx context.Context, pid int32) (int, error) {
	root, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return 0, nil
		}
		return 0, fmt.Errorf("open process %d: %w", pid, err)
	}
	tree := collectTree(ctx, root)

	killed := 0
	var errs []error
	for _, p := range tree {
		if err := p.KillWithContext(ctx); err != nil {
			if running, _ := p.IsRunningWithContext(ctx); !running {
				continue
			}
			errs = append(errs, fmt.Errorf("kill %d: %w", p.Pid, err))
			continue
		}
		killed++
	}
	return killed, errors.Join(errs...)
}

func collectTree(ctx context.Context, root *process.Process) []*process.Process {
	tree := []*process.Process{root}
	children, err := root.ChildrenWithContext(ctx)
	if err != nil && !errors.Is(err, process.ErrorNoChildren) {
		log.Printf("Procutil: Cannot list children of %d: %v", root.Pid, err)
	}
	for _, c := range children {
		tree = append(tree, collectTree(ctx, c)...)
	}
	return tree
}

// KillByExecutable keeps killing process trees started from path until none
// are left or maxRounds is reached (0: no limit). It returns the number of
// processes killed.
func KillByExecutable(ctx context.Context, path string, maxRounds int) (int, error) {
	total := 0
	for round := 1; maxRounds == 0 || round <= maxRounds; round++ {
		procs, err := FindByExecutable(ctx, path)
		if err != nil {
			return total, err
		}
		if len(procs) == 0 {
			return total, nil
		}
		// The first match is usually the parent of the others.
		log.Printf("Procutil: Killing %d (%d processes match %s)", procs[0].Pid, len(procs), path)
		n, err := KillTree(ctx, procs[0].Pid)
		total += n
		if err != nil {
			log.Printf("Procutil: %v", err)
		}
		if err := WaitForExit(ctx, procs[0].Pid, exitWaitTimeout); err != nil {
			log.Printf("Procutil: %v", err)
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	return total, fmt.Errorf("processes of %s still running after %d rounds", path, maxRounds)
}

// WaitForExit polls until pid is gone or timeout passes.
func WaitForExit(ctx context.Context, pid int32, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		running, err := process.PidExistsWithContext(ctx, pid)
		if err == nil && !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("process %d is still running: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
}
