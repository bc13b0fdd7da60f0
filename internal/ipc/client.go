package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// ForwardTimeout bounds one CLI → owner roundtrip.
const ForwardTimeout = 220 * time.Millisecond

// ErrNoOwner means no process is listening on the control socket.
var ErrNoOwner = errors.New("no active rehearse recording")

// RemoteError is a command the owner received and refused.
type RemoteError struct {
	Command string
	State   string
	Message string
}

func (e *RemoteError) Error() string {
	if e.State == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (state: %s)", e.Message, e.State)
}

// Send performs one request/response roundtrip with a deadline.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	return roundTrip(conn, req)
}

func roundTrip(conn net.Conn, req Request) (Response, error) {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Forward sends command to the recording owner. It returns ErrNoOwner when
// nobody listens and a *RemoteError when the owner refuses the command.
func Forward(ctx context.Context, path string, command string) (Response, error) {
	resp, err := Send(ctx, path, Request{Command: command}, ForwardTimeout)
	if err != nil {
		if noListener(err) {
			return Response{}, ErrNoOwner
		}
		return Response{}, fmt.Errorf("forward command %q: %w", command, err)
	}
	if !resp.OK {
		return resp, &RemoteError{Command: command, State: resp.State, Message: resp.Error}
	}
	return resp, nil
}

// Probe checks whether a responsive owner is currently listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	if err == nil {
		return true, nil
	}
	if noListener(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// noListener reports a missing socket file or a socket nobody accepts on.
// A regular file left at path also dials as ECONNREFUSED.
func noListener(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		strings.Contains(err.Error(), "no such file or directory")
}
