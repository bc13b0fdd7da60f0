package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/logging"
)

var (
	// ErrAlreadyListening is returned by Start while a stream is live or
	// another Start is still dialing.
	ErrAlreadyListening = errors.New("speech recognition already started")
	// ErrStartAborted is returned by a Start whose dial was overtaken by
	// Stop or Abort.
	ErrStartAborted = errors.New("speech recognition stopped while connecting")
)

// Options wires optional callbacks. Callbacks run on the event goroutine.
type Options struct {
	Logger    *slog.Logger
	OnFinal   func(answer string)
	OnInterim func(preview string)
	OnError   func(err error)
}

// Adapter owns the answer buffer. Typing and recognition may interleave
// freely; both only change the same buffer under one lock.
type Adapter struct {
	dial Dialer
	opts Options

	mu      sync.Mutex
	answer  string
	interim string
	stream  Stream
	done    chan struct{}
	// starting is set while Start dials; abortStart asks that dial's stream
	// to be dropped once it arrives.
	starting   bool
	abortStart bool
}

// NewAdapter builds an adapter. A nil dial disables recognition; the answer
// buffer still works for typed input.
func NewAdapter(dial Dialer, opts Options) *Adapter {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Adapter{dial: dial, opts: opts}
}

// Available reports whether a recognizer is configured.
func (a *Adapter) Available() bool {
	return a.dial != nil
}

// Start resets the interim preview and opens a recognition stream.
func (a *Adapter) Start(ctx context.Context) error {
	if a.dial == nil {
		return apperr.Permission("Speech recognition is not available", nil)
	}

	a.mu.Lock()
	if a.stream != nil || a.starting {
		a.mu.Unlock()
		return ErrAlreadyListening
	}
	a.starting, a.abortStart = true, false
	a.interim = ""
	a.mu.Unlock()

	stream, err := a.dial(ctx)

	a.mu.Lock()
	aborted := a.abortStart
	a.starting, a.abortStart = false, false
	if err != nil {
		a.mu.Unlock()
		a.opts.Logger.Warn("speech recognizer unavailable", "error", err.Error())
		return apperr.Network("Speech recognition unavailable", err)
	}
	if aborted {
		a.mu.Unlock()
		_ = stream.Abort()
		return ErrStartAborted
	}
	done := make(chan struct{})
	a.stream = stream
	a.done = done
	a.mu.Unlock()

	go a.consume(stream, done)
	return nil
}

func (a *Adapter) consume(stream Stream, done chan struct{}) {
	defer close(done)
	for event := range stream.Events() {
		switch event.Kind {
		case KindFinal:
			a.mu.Lock()
			a.answer = joinAnswer(a.answer, event.Text)
			a.interim = ""
			answer := a.answer
			a.mu.Unlock()
			if a.opts.OnFinal != nil {
				a.opts.OnFinal(answer)
			}
		case KindInterim:
			a.mu.Lock()
			a.interim = cleanSegment(event.Text)
			preview := a.interim
			a.mu.Unlock()
			if a.opts.OnInterim != nil {
				a.opts.OnInterim(preview)
			}
		case KindError:
			a.opts.Logger.Warn("speech recognition error", "error", errString(event.Err))
			if a.opts.OnError != nil {
				a.opts.OnError(event.Err)
			}
		}
	}
}

// SendAudio forwards PCM to the live stream; without one it is a no-op.
func (a *Adapter) SendAudio(chunk []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil || len(chunk) == 0 {
		return nil
	}
	return stream.SendAudio(chunk)
}

// Listening reports whether a stream is live.
func (a *Adapter) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream != nil
}

// Stop ends the stream after the recognizer delivers its last finals.
func (a *Adapter) Stop(ctx context.Context) error {
	stream, done := a.detach()
	if stream == nil {
		return nil
	}

	err := stream.Close(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		_ = stream.Abort()
		<-done
	}
	a.clearInterim()
	if err != nil {
		a.opts.Logger.Warn("speech recognizer close failed", "error", err.Error())
	}
	return err
}

// Abort drops the stream immediately. Safe before Start and repeatable.
func (a *Adapter) Abort() {
	stream, done := a.detach()
	if stream != nil {
		if err := stream.Abort(); err != nil {
			a.opts.Logger.Debug("speech recognizer abort", "error", err.Error())
		}
		<-done
	}
	a.clearInterim()
}

func (a *Adapter) detach() (Stream, chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.starting {
		a.abortStart = true
	}
	stream, done := a.stream, a.done
	a.stream, a.done = nil, nil
	return stream, done
}

func (a *Adapter) clearInterim() {
	a.mu.Lock()
	a.interim = ""
	a.mu.Unlock()
}

// Answer returns the accumulated answer text.
func (a *Adapter) Answer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.answer
}

// Interim returns the transient preview.
func (a *Adapter) Interim() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim
}

// Type appends typed text verbatim.
func (a *Adapter) Type(text string) {
	a.mu.Lock()
	a.answer += text
	a.mu.Unlock()
}

// Set replaces the answer text, e.g. after a failed submit restores it.
func (a *Adapter) Set(text string) {
	a.mu.Lock()
	a.answer = text
	a.mu.Unlock()
}

// Clear empties the answer and the preview.
func (a *Adapter) Clear() {
	a.mu.Lock()
	a.answer = ""
	a.interim = ""
	a.mu.Unlock()
}

// Take returns the answer and clears the buffer.
func (a *Adapter) Take() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	answer := a.answer
	a.answer = ""
	a.interim = ""
	return answer
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
