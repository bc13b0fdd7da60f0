package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning means another process owns the control socket.
var ErrAlreadyRunning = errors.New("a rehearse recording is already running")

const socketName = "rehearse.sock"

// RuntimeSocketPath resolves the control socket under XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, socketName), nil
}

// Acquire binds the control socket for a new recording owner.
//
// When the path is taken, the existing socket is probed: a live owner yields
// ErrAlreadyRunning, a dead one is unlinked and the bind is retried up to
// retries more times. rescue runs once per reclaimed socket so the caller can
// tidy up whatever the crashed owner left behind.
func Acquire(
	ctx context.Context,
	path string,
	probeTimeout time.Duration,
	retries int,
	rescue func(context.Context) error,
) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	var lastErr error
	for attempt := range retries + 1 {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		listener, err := net.Listen("unix", path)
		if err == nil {
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				_ = listener.Close()
				return nil, fmt.Errorf("restrict socket %s: %w", path, chmodErr)
			}
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
		lastErr = err

		if err := reclaimStale(ctx, path, probeTimeout); err != nil {
			return nil, err
		}
		if rescue != nil {
			_ = rescue(ctx)
		}
	}

	return nil, fmt.Errorf("acquire socket %s after %d retries: %w", path, retries, lastErr)
}

// reclaimStale removes path unless a live owner still answers on it.
func reclaimStale(ctx context.Context, path string, probeTimeout time.Duration) error {
	alive, err := Probe(ctx, path, probeTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

func backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(25*attempt) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
