package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startServer serves handler on a fresh socket. The returned stop func is
// safe to call more than once and also runs at cleanup.
func startServer(t *testing.T, handler HandlerFunc) (string, func()) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "rehearse.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, listener, handler) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			require.NoError(t, <-done)
		})
	}
	t.Cleanup(stop)
	return socketPath, stop
}

// rawOwner accepts one connection and hands it to respond, bypassing Serve.
func rawOwner(t *testing.T, respond func(net.Conn)) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "rehearse.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		respond(conn)
	}()
	return socketPath
}

func TestSendRoundTrip(t *testing.T) {
	var seen atomic.Value
	socketPath, _ := startServer(t, func(_ context.Context, req Request) Response {
		seen.Store(req.Command)
		return Response{OK: true, State: "recording", Message: "00:42"}
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, Response{OK: true, State: "recording", Message: "00:42"}, resp)
	require.Equal(t, CommandStatus, seen.Load())
}

func TestSendReportsMisbehavingOwner(t *testing.T) {
	tests := []struct {
		name    string
		respond func(net.Conn)
		wantErr string
	}{
		{
			name: "garbage reply",
			respond: func(conn net.Conn) {
				_, _ = bufio.NewReader(conn).ReadBytes('\n')
				_, _ = conn.Write([]byte("not-json\n"))
			},
			wantErr: "decode response",
		},
		{
			name:    "hangs up",
			respond: func(net.Conn) {},
			wantErr: "read response",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			socketPath := rawOwner(t, tc.respond)
			_, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestServeAnswersMalformedRequest(t *testing.T) {
	socketPath, _ := startServer(t, func(context.Context, Request) Response {
		return Response{OK: true}
	})

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{\"command\":\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")
}

func TestProbeTracksOwnerLifetime(t *testing.T) {
	socketPath, stop := startServer(t, func(context.Context, Request) Response {
		return Response{OK: true, State: "idle"}
	})

	alive, err := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, alive)

	stop()

	alive, err = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, alive)
}

func TestForwardReturnsOwnerResponse(t *testing.T) {
	socketPath, _ := startServer(t, func(_ context.Context, req Request) Response {
		if req.Command == CommandStatus {
			return Response{OK: true, State: "recording"}
		}
		return Failed("processing", "already processing")
	})

	resp, err := Forward(context.Background(), socketPath, CommandStatus)
	require.NoError(t, err)
	require.Equal(t, "recording", resp.State)

	resp, err = Forward(context.Background(), socketPath, CommandCancel)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, CommandCancel, remote.Command)
	require.Equal(t, "already processing (state: processing)", err.Error())
	require.Equal(t, "processing", resp.State)
}

func TestForwardWithoutOwner(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "rehearse.sock")
	_, err := Forward(context.Background(), missing, CommandStop)
	require.ErrorIs(t, err, ErrNoOwner)

	stale := filepath.Join(t.TempDir(), "rehearse.sock")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o600))
	_, err = Forward(context.Background(), stale, CommandStop)
	require.ErrorIs(t, err, ErrNoOwner)

	_, statErr := os.Stat(stale)
	require.NoError(t, statErr)
}

func TestForwardWrapsBrokenOwner(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "rehearse.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	_, err = Forward(context.Background(), socketPath, CommandStatus)
	require.ErrorContains(t, err, `forward command "status":`)
	require.NotErrorIs(t, err, ErrNoOwner)
}

func TestServeRefusesUnknownCommand(t *testing.T) {
	var calls atomic.Int32
	socketPath, _ := startServer(t, func(_ context.Context, _ Request) Response {
		calls.Add(1)
		return Response{OK: true}
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: "toggle"}, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, `unknown command "toggle"`, resp.Error)
	require.Zero(t, calls.Load())
}

func TestKnownCommands(t *testing.T) {
	for _, command := range []string{CommandStatus, CommandStop, CommandCancel, CommandRestart} {
		require.True(t, Known(command), command)
	}
	require.False(t, Known(""))
	require.False(t, Known("toggle"))
}
