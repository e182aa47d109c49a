// File: internal/resultserver/verdict.go
package resultserver

// Status is the pass/fail state reported by the test page.
type Status int

const (
	StatusUndecided Status = iota
	StatusValid
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusInvalid:
		return "INVALID"
	default:
		return "UNDECIDED"
	}
}

// Verdict is the outcome of one browser test run. Detail carries the error
// text for INVALID verdicts; Path is the POST path that decided it.
type Verdict struct {
	Status Status
	Detail string
	Path   string
}

// ExitCode maps the verdict to the driver's process exit code.
func (v Verdict) ExitCode() int {
	if v.Status == StatusValid {
		return 0
	}
	return 1
}

func (v Verdict) Decided() bool { return v.Status != StatusUndecided }
