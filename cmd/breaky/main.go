// File: cmd/breaky/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/speedtracer/breaky/internal/browser"
	"github.com/speedtracer/breaky/internal/config"
	"github.com/speedtracer/breaky/internal/driver"
	"github.com/speedtracer/breaky/internal/procutil"
	"github.com/speedtracer/breaky/internal/resultserver"
)

const killStaleTimeout = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("breaky", flag.ContinueOnError)
	cfg, err := config.Parse(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		log.Printf("Main: %v", err)
		return 1
	}

	srv, err := resultserver.Start(cfg.Server)
	if err != nil {
		log.Printf("Main: Cannot start result server: %v", err)
		return 1
	}
	defer srv.Close()
	log.Printf("Main: Result server listening on %s (doc root %s)", srv.Addr(), cfg.Server.DocRoot)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer stopSignals(sigs)
	go watchSignals(ctx, sigs, cancel)

	var launcher driver.BrowserLauncher = noBrowser{}
	if !cfg.ManualMode {
		l, err := newLauncher(ctx, cfg, cancel)
		if err != nil {
			log.Printf("Main: %v", err)
			return 1
		}
		launcher = l
	}

	d := driver.New(cfg, srv, launcher)
	v, err := d.Run(ctx)
	switch {
	case err != nil && !errors.Is(err, driver.ErrInterrupted):
		log.Printf("Main: Test run failed: %v", err)
	case v.Status == resultserver.StatusInvalid:
		log.Printf("Main: Test reported failure: %s", v.Detail)
	default:
		log.Printf("Main: Result %s", v.Status)
	}
	return driver.ExitCode(v, err)
}

var stopSignals = signal.Stop

// watchSignals cancels the run on the first signal and then restores default
// handling, so a second Ctrl-C kills the process while the browser is stopped.
func watchSignals(ctx context.Context, sigs chan os.Signal, cancel context.CancelCauseFunc) {
	select {
	case sig := <-sigs:
		stopSignals(sigs)
		log.Printf("Main: Got %s, shutting down (repeat to force quit)", sig)
		cancel(driver.ErrInterrupted)
	case <-ctx.Done():
	}
}

func newLauncher(ctx context.Context, cfg *config.DriverConfig, cancel context.CancelCauseFunc) (*browser.Launcher, error) {
	chrome, err := browser.ResolveExecutable(cfg.Browser.ChromePath)
	if err != nil {
		return nil, err
	}
	headless, err := filepath.Abs(cfg.Browser.HeadlessPath)
	if err != nil {
		return nil, err
	}
	if cfg.Browser.KillStale {
		killCtx, done := context.WithTimeout(ctx, killStaleTimeout)
		n, err := procutil.KillByExecutable(killCtx, chrome, 0)
		done()
		if err != nil {
			log.Printf("Main: Killing stale browsers: %v", err)
		} else if n > 0 {
			log.Printf("Main: Killed %d stale browser process(es)", n)
		}
	}
	return browser.NewLauncher(browser.Options{
		ExecutablePath: chrome,
		ExtensionPath:  headless,
		LaunchDelay:    cfg.Browser.LaunchDelay,
		ExtraArgs:      cfg.Browser.ExtraArgs,
		OnSpawnError: func(err error) {
			log.Printf("Main: %v", err)
			cancel(err)
		},
	}), nil
}

// noBrowser is used in manual mode, where the operator opens the page.
type noBrowser struct{}

func (noBrowser) Start(string) error { return nil }
func (noBrowser) Stop()              {}
