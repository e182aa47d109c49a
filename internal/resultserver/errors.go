// File: internal/resultserver/errors.go
package resultserver

import (
	"errors"
	"fmt"
)

// ErrServerStopped is returned by ServeOneRequest once the server has been closed.
var ErrServerStopped = errors.New("result server stopped")

// BindError reports that the listening socket could not be opened.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
