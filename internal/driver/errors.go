// File: internal/driver/errors.go
package driver

import (
	"errors"

	"github.com/speedtracer/breaky/internal/resultserver"
)

var (
	// ErrHang is logged when a polling window passes without any request.
	ErrHang = errors.New("browser is hung")
	// ErrTooManyRestarts ends the run once the restart cap is exceeded.
	ErrTooManyRestarts = errors.New("too many browser restarts")
	// ErrInterrupted is the cancel cause used when the operator stops the run.
	ErrInterrupted = errors.New("interrupted")
)

type exitCoder interface {
	ExitCode() int
}

// ExitCode maps the outcome of Run to the process exit code. An interrupt
// keeps whatever verdict was recorded; any other error fails the run.
func ExitCode(v resultserver.Verdict, err error) int {
	if err == nil || errors.Is(err, ErrInterrupted) {
		return v.ExitCode()
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return 1
}
