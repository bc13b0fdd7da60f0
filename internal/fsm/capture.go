package fsm

import "fmt"

// CaptureState is the per-handle device lifecycle. Stopped is terminal.
type CaptureState string

type CaptureEvent string

const (
	CaptureIdle      CaptureState = "idle"
	CaptureAcquiring CaptureState = "acquiring"
	CaptureRecording CaptureState = "recording"
	CaptureStopped   CaptureState = "stopped"
)

const (
	CaptureEventAcquire CaptureEvent = "acquire"
	CaptureEventStart   CaptureEvent = "start"
	CaptureEventStop    CaptureEvent = "stop"
)

// CaptureTransition applies one event to a capture handle state.
// Stop is accepted from every non-terminal state so teardown always releases devices.
func CaptureTransition(current CaptureState, event CaptureEvent) (CaptureState, error) {
	switch current {
	case CaptureIdle:
		switch event {
		case CaptureEventAcquire:
			return CaptureAcquiring, nil
		case CaptureEventStop:
			return CaptureStopped, nil
		}
	case CaptureAcquiring:
		switch event {
		case CaptureEventStart:
			return CaptureRecording, nil
		case CaptureEventStop:
			return CaptureStopped, nil
		}
	case CaptureRecording:
		if event == CaptureEventStop {
			return CaptureStopped, nil
		}
	case CaptureStopped:
		if event == CaptureEventStop {
			return CaptureStopped, nil
		}
	default:
		return current, fmt.Errorf("unknown capture state %q", current)
	}
	return current, fmt.Errorf("%w: capture %s --(%s)--> ?", ErrInvalidTransition, current, event)
}
