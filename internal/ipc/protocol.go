// Package ipc carries control commands from short-lived CLI invocations to
// the process that owns an active recording.
package ipc

// Commands understood by the recording owner.
const (
	CommandStatus  = "status"
	CommandStop    = "stop"
	CommandCancel  = "cancel"
	CommandRestart = "restart"
)

// Known reports whether command is part of the control protocol.
func Known(command string) bool {
	switch command {
	case CommandStatus, CommandStop, CommandCancel, CommandRestart:
		return true
	}
	return false
}

// Request is one newline-delimited JSON command.
type Request struct {
	Command string `json:"command"`
}

// Response reports the owner's state after handling a command.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failed builds an error response.
func Failed(state string, err string) Response {
	return Response{OK: false, State: state, Error: err}
}
