// File: internal/driver/driver.go

// Package driver runs one end-to-end breaky test: it points a browser at the
// result server, waits for the verdict POST and restarts the browser when it
// stops talking to the server.
package driver

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/speedtracer/breaky/internal/config"
	"github.com/speedtracer/breaky/internal/resultserver"
)

// ResultServer is the part of *resultserver.Server the driver polls.
type ResultServer interface {
	ServeOneRequest(ctx context.Context, timeout time.Duration) (resultserver.RequestOutcome, error)
	Verdict() resultserver.Verdict
	Decided() bool
	TakeRequestCount() int
	Port() int
}

// BrowserLauncher is the part of *browser.Launcher the driver uses.
type BrowserLauncher interface {
	Start(url string) error
	Stop()
}

type Driver struct {
	cfg      *config.DriverConfig
	srv      ResultServer
	launcher BrowserLauncher
	url      string

	restarts int
	limiter  *rate.Limiter
}

func New(cfg *config.DriverConfig, srv ResultServer, launcher BrowserLauncher) *Driver {
	limit := rate.Inf
	if cfg.Restart.MinInterval > 0 {
		limit = rate.Every(cfg.Restart.MinInterval)
	}
	return &Driver{
		cfg:      cfg,
		srv:      srv,
		launcher: launcher,
		url:      config.PageURL(cfg.Server.ResolveHostname(), srv.Port()),
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// URL is the test page the browser loads.
func (d *Driver) URL() string { return d.url }

// Restarts is how many times a hung browser was replaced.
func (d *Driver) Restarts() int { return d.restarts }

// Run drives the test until a verdict arrives (or, in manual mode, until ctx
// ends). The browser is stopped on every return path.
func (d *Driver) Run(ctx context.Context) (resultserver.Verdict, error) {
	manual := d.cfg.ManualMode
	if manual {
		log.Printf("Driver: Manual Mode. Point chrome at %s", d.url)
	} else {
		defer d.launcher.Stop()
		if err := d.launcher.Start(d.url); err != nil {
			return d.srv.Verdict(), fmt.Errorf("start browser: %w", err)
		}
	}

	timeout := d.cfg.Server.RequestTimeout
	for {
		log.Printf("Driver: > handle_request")
		outcome, err := d.srv.ServeOneRequest(ctx, timeout)
		if err != nil {
			return d.srv.Verdict(), err
		}
		if manual {
			// Keep serving after a verdict; the operator decides when to stop.
			d.srv.TakeRequestCount()
			continue
		}
		if d.srv.Decided() {
			break
		}
		// Only a silent window counts as a hang.
		if n := d.srv.TakeRequestCount(); n == 0 && outcome == resultserver.OutcomeTimedOut {
			log.Printf("Driver: Chrome is hung ... restarting (%v: no request in %s)", ErrHang, timeout)
			if err := d.restart(ctx); err != nil {
				return d.srv.Verdict(), err
			}
		}
	}

	v := d.srv.Verdict()
	log.Printf("Driver: Verdict %s after %d restart(s)", v.Status, d.restarts)
	return v, nil
}

func (d *Driver) restart(ctx context.Context) error {
	d.restarts++
	if limit := d.cfg.Restart.MaxRestarts; limit > 0 && d.restarts > limit {
		return fmt.Errorf("%w: gave up after %d", ErrTooManyRestarts, limit)
	}
	if err := d.limiter.Wait(ctx); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return fmt.Errorf("wait to restart browser: %w", err)
	}
	d.launcher.Stop()
	if err := d.launcher.Start(d.url); err != nil {
		return fmt.Errorf("restart browser: %w", err)
	}
	d.srv.TakeRequestCount()
	return nil
}
