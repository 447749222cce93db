package renewer

import "fmt"

// State is a step of a renewal run. A run only moves forward through the states,
// from any of them it can end up in StateFailed.
type State int

const (
	StateIdle State = iota
	StateLoggingIn
	StateListing
	StateClassifying
	StateRenewing
	StateReconciling
	StateComposing
	StateNotifying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoggingIn:
		return "logging in"
	case StateListing:
		return "listing"
	case StateClassifying:
		return "classifying"
	case StateRenewing:
		return "renewing"
	case StateReconciling:
		return "reconciling"
	case StateComposing:
		return "composing"
	case StateNotifying:
		return "notifying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RunError is returned by Run, State is where the run was when it failed.
type RunError struct {
	State State
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("renewer: %s: %v", e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
