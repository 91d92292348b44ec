package workflow

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a case workflow.
type State string

const (
	StateIdle        State = "idle"
	StateEditing     State = "editing"
	StateSubmitting  State = "submitting"
	StatePolling     State = "polling"
	StateNormalizing State = "normalizing"
	StateReviewed    State = "reviewed"
	StateError       State = "error"
)

// ErrInvalidTransition is wrapped by ValidateTransition.
var ErrInvalidTransition = errors.New("invalid state transition")

// allowedTransitions defines which target states are reachable from each
// source state. Switching patients (to Editing) is allowed from anywhere and
// is handled separately.
var allowedTransitions = map[State]map[State]bool{
	StateIdle:        {},
	StateEditing:     {StateSubmitting: true},
	StateSubmitting:  {StatePolling: true, StateError: true},
	StatePolling:     {StateNormalizing: true, StateError: true},
	StateNormalizing: {StateReviewed: true, StateError: true},
	StateReviewed:    {},
	StateError:       {StatePolling: true},
}

// ValidateTransition reports whether the workflow may move from one state to
// another.
func ValidateTransition(from, to State) error {
	if to == StateEditing {
		return nil
	}
	if !allowedTransitions[from][to] {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Busy reports whether a submission pipeline owns the workflow.
func (s State) Busy() bool {
	return s == StateSubmitting || s == StatePolling || s == StateNormalizing
}
