// Package fsm holds the recording and capture lifecycles as pure transition
// functions. Callers own the current state and its locking.
package fsm

import (
	"errors"
	"fmt"
)

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

const (
	EventStart    Event = "start"
	EventStop     Event = "stop"
	EventCancel   Event = "cancel"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
	EventRestart  Event = "restart"
)

// ErrInvalidTransition is wrapped by every rejected event.
var ErrInvalidTransition = errors.New("invalid transition")

// recordingTransitions excludes EventFail, which reaches StateError from
// anywhere.
var recordingTransitions = map[State]map[Event]State{
	StateIdle:       {EventStart: StateRecording},
	StateRecording:  {EventStop: StateProcessing, EventCancel: StateIdle},
	StateProcessing: {EventComplete: StateComplete},
	StateComplete:   {EventRestart: StateIdle},
	StateError:      {EventRestart: StateIdle},
}

// Transition applies event to the recording lifecycle. A rejected event
// returns current unchanged alongside the error.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	edges, ok := recordingTransitions[current]
	if !ok {
		return current, fmt.Errorf("unknown state %q", current)
	}
	next, ok := edges[event]
	if !ok {
		return current, fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, current, event)
	}
	return next, nil
}
