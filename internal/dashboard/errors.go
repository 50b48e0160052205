package dashboard

import (
	"errors"
	"fmt"
)

// ErrStale is returned when the dashboard changed while a search was in
// flight. The result is discarded; the caller may retry.
var ErrStale = errors.New("dashboard: state changed during request")

// PreconditionError reports an action triggered before the state it needs.
type PreconditionError struct {
	Action string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("dashboard: cannot %s: %s", e.Action, e.Reason)
}

func precondition(action, reason string) error {
	return &PreconditionError{Action: action, Reason: reason}
}
