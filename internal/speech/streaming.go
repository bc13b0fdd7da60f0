package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/version"
)

// The realtime service accepts audio messages between 50ms and 1000ms long.
const (
	minFrameMillis = 50
	maxFrameMillis = 950
)

// StreamConfig controls one realtime recognition session.
type StreamConfig struct {
	URL         string
	APIKey      string
	SampleRate  int
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// message is the union of realtime server and client messages.
type message struct {
	Type               string  `json:"type"`
	ID                 string  `json:"id,omitempty"`
	ExpiresAt          int64   `json:"expires_at,omitempty"`
	TurnOrder          int     `json:"turn_order,omitempty"`
	EndOfTurn          bool    `json:"end_of_turn,omitempty"`
	TurnIsFormatted    bool    `json:"turn_is_formatted,omitempty"`
	Transcript         string  `json:"transcript,omitempty"`
	AudioDurationSec   float64 `json:"audio_duration_seconds,omitempty"`
	SessionDurationSec float64 `json:"session_duration_seconds,omitempty"`
	Error              string  `json:"error,omitempty"`
}

// StreamingRecognizer is a realtime WebSocket recognition session.
type StreamingRecognizer struct {
	conn   *websocket.Conn
	logger *slog.Logger
	events chan Event

	minFrame int
	maxFrame int

	writeMu sync.Mutex
	pending []byte
	closed  bool

	sessionID  string
	lastFinal  int
	terminated chan struct{}
	readDone   chan struct{}
	abort      chan struct{}
	abortOnce  sync.Once
}

// NewDialer returns a Dialer bound to cfg.
func NewDialer(cfg StreamConfig) Dialer {
	return func(ctx context.Context) (Stream, error) {
		return DialStream(ctx, cfg)
	}
}

// DialStream connects and starts the receive loop.
func DialStream(ctx context.Context, cfg StreamConfig) (*StreamingRecognizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("speech api key is empty")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	endpoint, err := streamURL(cfg.URL, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", cfg.APIKey)
	header.Set("User-Agent", version.UserAgent())

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect speech stream: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect speech stream: %w", err)
	}

	bytesPerMilli := cfg.SampleRate * 2 / 1000
	r := &StreamingRecognizer{
		conn:       conn,
		logger:     cfg.Logger,
		events:     make(chan Event, 64),
		minFrame:   bytesPerMilli * minFrameMillis,
		maxFrame:   bytesPerMilli * maxFrameMillis,
		lastFinal:  -1,
		terminated: make(chan struct{}),
		readDone:   make(chan struct{}),
		abort:      make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func streamURL(raw string, sampleRate int) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse speech url: %w", err)
	}
	query := parsed.Query()
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("format_turns", "true")
	query.Set("encoding", "pcm_s16le")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Events implements Stream.
func (r *StreamingRecognizer) Events() <-chan Event {
	return r.events
}

// SessionID is the server-issued id from the Begin message.
func (r *StreamingRecognizer) SessionID() string {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.sessionID
}

// SendAudio buffers PCM and writes it in frames the service accepts.
func (r *StreamingRecognizer) SendAudio(chunk []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.closed {
		return errors.New("speech stream already closed for sending")
	}

	r.pending = append(r.pending, chunk...)
	for len(r.pending) >= r.minFrame {
		size := min(len(r.pending), r.maxFrame)
		if err := r.conn.WriteMessage(websocket.BinaryMessage, r.pending[:size]); err != nil {
			r.pending = nil
			return fmt.Errorf("send audio: %w", err)
		}
		r.pending = r.pending[size:]
	}
	if len(r.pending) == 0 {
		r.pending = nil
	}
	return nil
}

// Close flushes residual audio, asks the service to terminate, and waits
// for the Termination message or the end of the receive loop.
func (r *StreamingRecognizer) Close(ctx context.Context) error {
	r.writeMu.Lock()
	if r.closed {
		r.writeMu.Unlock()
		<-r.readDone
		return nil
	}
	r.closed = true
	if len(r.pending) > 0 {
		_ = r.conn.WriteMessage(websocket.BinaryMessage, r.pending)
		r.pending = nil
	}
	payload, _ := json.Marshal(message{Type: "Terminate"})
	writeErr := r.conn.WriteMessage(websocket.TextMessage, payload)
	r.writeMu.Unlock()

	if writeErr == nil {
		select {
		case <-r.terminated:
		case <-r.readDone:
		case <-ctx.Done():
			_ = r.Abort()
			<-r.readDone
			return ctx.Err()
		}
	}

	r.writeMu.Lock()
	_ = r.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.writeMu.Unlock()
	_ = r.conn.Close()
	<-r.readDone

	if writeErr != nil {
		return fmt.Errorf("send terminate: %w", writeErr)
	}
	return nil
}

// Abort closes the connection without waiting for pending results.
func (r *StreamingRecognizer) Abort() error {
	var err error
	r.abortOnce.Do(func() {
		close(r.abort)
		r.writeMu.Lock()
		r.closed = true
		r.pending = nil
		r.writeMu.Unlock()
		err = r.conn.Close()
	})
	return err
}

func (r *StreamingRecognizer) readLoop() {
	defer close(r.readDone)
	defer close(r.events)

	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			if r.expectedClose(err) {
				return
			}
			r.emit(Event{Kind: KindError, Err: fmt.Errorf("speech stream: %w", err)})
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.logger.Debug("speech stream: undecodable message", "error", err.Error())
			continue
		}
		r.handle(msg)
	}
}

func (r *StreamingRecognizer) expectedClose(err error) bool {
	select {
	case <-r.abort:
		return true
	case <-r.terminated:
		return true
	default:
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (r *StreamingRecognizer) handle(msg message) {
	switch msg.Type {
	case "Begin":
		r.writeMu.Lock()
		r.sessionID = msg.ID
		r.writeMu.Unlock()
		r.logger.Debug("speech session started", "session_id", msg.ID)
	case "Turn":
		text := cleanSegment(msg.Transcript)
		if text == "" {
			return
		}
		if msg.TurnIsFormatted {
			// Each turn is finalized once; duplicates for the same turn order are dropped.
			if msg.TurnOrder <= r.lastFinal {
				return
			}
			r.lastFinal = msg.TurnOrder
			r.emit(Event{Kind: KindFinal, Text: text})
			return
		}
		r.emit(Event{Kind: KindInterim, Text: text})
	case "Termination":
		r.logger.Debug("speech session terminated",
			"audio_seconds", msg.AudioDurationSec,
			"session_seconds", msg.SessionDurationSec,
		)
		select {
		case <-r.terminated:
		default:
			close(r.terminated)
		}
	case "Error":
		r.emit(Event{Kind: KindError, Err: errors.New(msg.Error)})
	}
}

func (r *StreamingRecognizer) emit(event Event) {
	select {
	case r.events <- event:
	case <-r.abort:
	}
}
