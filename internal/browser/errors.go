// File: internal/browser/errors.go
package browser

import (
	"fmt"
)

// SpawnError means the browser executable could not be started. The driver
// treats it as fatal.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn browser %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// TerminationError covers a failed kill or profile cleanup. It is only logged.
type TerminationError struct {
	Op  string
	PID int
	Err error
}

func (e *TerminationError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s (pid %d): %v", e.Op, e.PID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}
