// File: internal/browser/launcher.go

// Package browser launches Chrome in a throwaway profile for the breaky test
// and makes sure neither the process nor the profile outlives the run.
package browser

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	profileDirPattern = "breaky-profile-"
	exitWaitTimeout   = 10 * time.Second
)

// Options configures a Launcher. OnSpawnError is called from the spawn timer
// goroutine when the browser cannot be started.
type Options struct {
	ExecutablePath string
	ExtensionPath  string
	LaunchDelay    time.Duration
	ExtraArgs      []string
	OnSpawnError   func(error)
}

// Session describes the live browser process.
type Session struct {
	PID        int
	ProfileDir string
	URL        string
}

// Launcher owns at most one browser session at a time.
type Launcher struct {
	opts Options

	// opMu serializes Start and Stop. mu guards the fields the spawn timer writes.
	opMu    sync.Mutex
	timer   *time.Timer
	spawned chan struct{}

	mu         sync.Mutex
	cmd        *exec.Cmd
	waitDone   chan struct{}
	profileDir string
	url        string
	err        error
}

func NewLauncher(opts Options) *Launcher {
	return &Launcher{opts: opts}
}

// ResolveExecutable turns a bare command name into a PATH lookup and any other
// path into an absolute one.
func ResolveExecutable(path string) (string, error) {
	if !strings.ContainsRune(path, filepath.Separator) && !strings.ContainsRune(path, '/') {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", &SpawnError{Path: path, Err: err}
		}
		return resolved, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &SpawnError{Path: path, Err: err}
	}
	return abs, nil
}

// Args is the command line handed to the browser for one session.
func (l *Launcher) Args(profileDir, url string) []string {
	args := []string{
		"--enable-extension-timeline-api",
		"--no-first-run",
		"--user-data-dir=" + profileDir,
		"--load-extension=" + l.opts.ExtensionPath,
	}
	args = append(args, l.opts.ExtraArgs...)
	return append(args, url)
}

// Start creates a fresh profile directory and schedules the browser to be
// spawned after LaunchDelay. It returns without waiting for the spawn.
func (l *Launcher) Start(url string) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if l.timer != nil {
		log.Printf("Browser: Start called with a live session, stopping it first")
		l.stopLocked()
	}

	// Fresh user data dir so history from earlier runs or the installed
	// browser never leaks in.
	dir, err := os.MkdirTemp("", profileDirPattern)
	if err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	spawned := make(chan struct{})
	l.mu.Lock()
	l.profileDir = dir
	l.url = url
	l.err = nil
	l.mu.Unlock()

	l.spawned = spawned
	l.timer = time.AfterFunc(l.opts.LaunchDelay, func() { l.spawn(dir, url, spawned) })
	return nil
}

func (l *Launcher) spawn(dir, url string, spawned chan struct{}) {
	defer close(spawned)

	log.Printf("Browser: User data dir is %s", dir)
	args := l.Args(dir, url)
	cmd := exec.Command(l.opts.ExecutablePath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	prepareCommand(cmd)

	log.Printf("Browser: Starting %s %s", l.opts.ExecutablePath, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		spawnErr := &SpawnError{Path: l.opts.ExecutablePath, Err: err}
		log.Printf("Browser: %v", spawnErr)
		l.mu.Lock()
		l.err = spawnErr
		l.mu.Unlock()
		if l.opts.OnSpawnError != nil {
			l.opts.OnSpawnError(spawnErr)
		}
		return
	}

	waitDone := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waitDone)
	}()

	l.mu.Lock()
	l.cmd = cmd
	l.waitDone = waitDone
	l.mu.Unlock()
	log.Printf("Browser: Started pid %d", cmd.Process.Pid)
}

// Stop kills the browser, waits for it to exit and removes its profile
// directory. Errors are logged, never returned. Stop without Start is a no-op.
func (l *Launcher) Stop() {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	l.stopLocked()
}

func (l *Launcher) stopLocked() {
	if l.timer == nil {
		return
	}
	if !l.timer.Stop() {
		// The spawn already fired; let it finish so cmd is settled.
		<-l.spawned
	}
	l.timer = nil
	l.spawned = nil

	l.mu.Lock()
	cmd, waitDone, dir := l.cmd, l.waitDone, l.profileDir
	l.cmd, l.waitDone, l.profileDir, l.url = nil, nil, "", ""
	l.mu.Unlock()

	if cmd != nil {
		pid := cmd.Process.Pid
		if err := terminate(cmd); err != nil {
			log.Printf("Browser: Got an error trying to kill chrome: %v", &TerminationError{Op: "kill browser", PID: pid, Err: err})
		}
		select {
		case <-waitDone:
		case <-time.After(exitWaitTimeout):
			log.Printf("Browser: %v", &TerminationError{Op: "wait for browser exit", PID: pid, Err: fmt.Errorf("still running after %s", exitWaitTimeout)})
		}
	}

	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Browser: Cannot remove temporary user data dir: %v", &TerminationError{Op: "remove " + dir, Err: err})
		}
	}
}

// Session reports the running browser, if any.
func (l *Launcher) Session() (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil {
		return Session{}, false
	}
	return Session{PID: l.cmd.Process.Pid, ProfileDir: l.profileDir, URL: l.url}, true
}

// ProfileDir is the profile of the current (possibly not yet spawned) session.
func (l *Launcher) ProfileDir() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.profileDir
}

// Err returns the spawn failure of the current session, if there was one.
func (l *Launcher) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
