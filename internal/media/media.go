// Package media acquires camera/microphone sources and exposes them as
// start/stop capture handles that deliver ordered media chunks.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/logging"
)

// PermissionMessage is shown when devices cannot be acquired.
const PermissionMessage = "Could not access camera/microphone. Please grant permissions."

// ErrBusy is returned by Acquire while another handle is still live.
var ErrBusy = errors.New("media capture already in progress")

// Constraints selects which devices a handle needs.
type Constraints struct {
	Video bool
	Audio bool
}

// Info describes the encoded payload a source produces.
type Info struct {
	MIMEType string
	Filename string
	Device   string
}

// Source is one acquired device stream. Implementations must close Chunks
// after Stop returns and must tolerate Stop before Start.
type Source interface {
	Start() error
	Chunks() <-chan []byte
	Stop() error
}

// Opener acquires devices for a set of constraints without starting them.
type Opener interface {
	Open(ctx context.Context, constraints Constraints) (Source, Info, error)
}

// Controller hands out at most one live Handle at a time.
type Controller struct {
	opener Opener
	logger *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// NewController builds a capture controller over opener.
func NewController(opener Opener, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{opener: opener, logger: logger}
}

// Acquire requests devices. Denials and missing devices surface as
// permission errors; nothing is retried.
//
// Cancelling ctx stops the handle and releases its devices.
func (c *Controller) Acquire(ctx context.Context, constraints Constraints) (*Handle, error) {
	if !constraints.Video && !constraints.Audio {
		return nil, apperr.Validation("capture requires video or audio")
	}

	c.mu.Lock()
	if c.active != nil && c.active.State() != fsm.CaptureStopped {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	handle := &Handle{
		state:  fsm.CaptureIdle,
		out:    make(chan []byte, 64),
		done:   make(chan struct{}),
		logger: c.logger,
	}
	handle.state, _ = fsm.CaptureTransition(handle.state, fsm.CaptureEventAcquire)
	c.active = handle
	c.mu.Unlock()

	source, info, err := c.opener.Open(ctx, constraints)
	if err != nil {
		_ = handle.Stop()
		if apperr.IsKind(err, apperr.KindPermission) {
			return nil, err
		}
		return nil, apperr.Permission(PermissionMessage, err)
	}
	handle.attach(source, info)

	go func() {
		select {
		case <-ctx.Done():
			_ = handle.Stop()
		case <-handle.done:
		}
	}()

	c.logger.Debug("media acquired",
		"video", constraints.Video,
		"audio", constraints.Audio,
		"device", info.Device,
		"mime", info.MIMEType,
	)
	return handle, nil
}

// Handle is one acquired capture. Stopped is terminal.
type Handle struct {
	logger *slog.Logger

	mu      sync.Mutex
	state   fsm.CaptureState
	source  Source
	info    Info
	out     chan []byte
	done    chan struct{}
	pumping sync.WaitGroup
	bytes   int64
	count   int
}

func (h *Handle) attach(source Source, info Info) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = source
	h.info = info
	if h.state == fsm.CaptureStopped {
		go func() { _ = source.Stop() }()
	}
}

// State reports the current lifecycle state.
func (h *Handle) State() fsm.CaptureState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Info reports the payload format of this handle.
func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

// Chunks delivers non-empty chunks in capture order. It is closed after Stop;
// callers must drain it until then.
func (h *Handle) Chunks() <-chan []byte {
	return h.out
}

// Start begins buffering.
func (h *Handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := fsm.CaptureTransition(h.state, fsm.CaptureEventStart)
	if err != nil {
		return err
	}
	if err := h.source.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	h.state = next

	h.pumping.Add(1)
	go h.pump(h.source.Chunks())
	return nil
}

func (h *Handle) pump(in <-chan []byte) {
	defer h.pumping.Done()
	for chunk := range in {
		if len(chunk) == 0 {
			continue
		}
		h.mu.Lock()
		h.bytes += int64(len(chunk))
		h.count++
		h.mu.Unlock()
		h.out <- chunk
	}
}

// Stop finalizes buffering and releases every device. Repeat calls are no-ops.
func (h *Handle) Stop() error {
	h.mu.Lock()
	if h.state == fsm.CaptureStopped {
		h.mu.Unlock()
		return nil
	}
	h.state, _ = fsm.CaptureTransition(h.state, fsm.CaptureEventStop)
	source := h.source
	close(h.done)
	h.mu.Unlock()

	var err error
	if source != nil {
		err = source.Stop()
	}
	h.pumping.Wait()
	close(h.out)

	h.mu.Lock()
	h.logger.Debug("media released", "chunks", h.count, "bytes", h.bytes)
	h.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	return nil
}

// Close is the deferred-cleanup alias for Stop.
func (h *Handle) Close() {
	_ = h.Stop()
}
