// Package speech turns a continuous recognition stream into an editable
// answer buffer: final segments are appended, interim text is a preview.
package speech

import "context"

// Kind partitions recognition events.
type Kind string

const (
	KindFinal   Kind = "final"
	KindInterim Kind = "interim"
	KindError   Kind = "error"
)

// Event is one recognition callback.
type Event struct {
	Kind Kind
	Text string
	Err  error
}

// Stream is one live recognition session fed with PCM audio.
//
// Events is closed once the stream has fully ended. Close flushes buffered
// audio and waits for the recognizer to finish; Abort drops everything.
type Stream interface {
	Events() <-chan Event
	SendAudio(chunk []byte) error
	Close(ctx context.Context) error
	Abort() error
}

// Dialer opens a new recognition stream.
type Dialer func(ctx context.Context) (Stream, error)
