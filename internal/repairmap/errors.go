package repairmap

import (
	"errors"
	"fmt"
)

// ErrStateViolation marks an invalid sector state transition. It indicates a
// defect in stage logic and aborts the run rather than being retried.
var ErrStateViolation = errors.New("repair map state violation")

// StateViolationError reports the first sector of an attempted invalid
// transition.
type StateViolationError struct {
	Sector int64
	From   State
	To     State
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("repair map state violation: sector %d cannot move %s -> %s", e.Sector, e.From, e.To)
}

func (e *StateViolationError) Unwrap() error { return ErrStateViolation }

// ErrorKind classifies the error for failure reporting.
func (e *StateViolationError) ErrorKind() string { return "state_violation" }
