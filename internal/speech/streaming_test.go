package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeRealtimeServer struct {
	server *httptest.Server

	mu         sync.Mutex
	authHeader string
	query      string
	frames     []int
	terminated bool
}

// newFakeRealtimeServer answers with script once the first audio frame arrives.
func newFakeRealtimeServer(t *testing.T, script []message) *fakeRealtimeServer {
	t.Helper()
	fake := &fakeRealtimeServer{}
	upgrader := websocket.Upgrader{}

	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.authHeader = r.Header.Get("Authorization")
		fake.query = r.URL.RawQuery
		fake.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(message{Type: "Begin", ID: "sess-1"})
		scripted := false
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				fake.mu.Lock()
				fake.frames = append(fake.frames, len(payload))
				fake.mu.Unlock()
				if !scripted {
					scripted = true
					for _, msg := range script {
						_ = conn.WriteJSON(msg)
					}
				}
				continue
			}

			var msg message
			_ = json.Unmarshal(payload, &msg)
			if msg.Type == "Terminate" {
				fake.mu.Lock()
				fake.terminated = true
				fake.mu.Unlock()
				_ = conn.WriteJSON(message{Type: "Turn", TurnOrder: 9, TurnIsFormatted: true, Transcript: "Last words."})
				_ = conn.WriteJSON(message{Type: "Termination", AudioDurationSec: 1.5})
			}
		}
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeRealtimeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v3/ws"
}

func collect(events <-chan Event) []Event {
	var out []Event
	for event := range events {
		out = append(out, event)
	}
	return out
}

func TestStreamingRecognizerDeliversTurns(t *testing.T) {
	fake := newFakeRealtimeServer(t, []message{
		{Type: "Turn", TurnOrder: 0, Transcript: "hello"},
		{Type: "Turn", TurnOrder: 0, EndOfTurn: true, Transcript: "hello there"},
		{Type: "Turn", TurnOrder: 0, EndOfTurn: true, TurnIsFormatted: true, Transcript: "Hello there."},
		{Type: "Turn", TurnOrder: 0, EndOfTurn: true, TurnIsFormatted: true, Transcript: "Hello there."},
		{Type: "Turn", TurnOrder: 1, Transcript: "   "},
	})

	stream, err := DialStream(context.Background(), StreamConfig{URL: fake.wsURL(), APIKey: "secret", SampleRate: 16000})
	require.NoError(t, err)

	done := make(chan []Event)
	go func() { done <- collect(stream.Events()) }()

	require.NoError(t, stream.SendAudio(make([]byte, 1000)))
	require.NoError(t, stream.SendAudio(make([]byte, 1000)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, stream.Close(ctx))

	events := <-done
	require.Equal(t, []Event{
		{Kind: KindInterim, Text: "hello"},
		{Kind: KindInterim, Text: "hello there"},
		{Kind: KindFinal, Text: "Hello there."},
		{Kind: KindFinal, Text: "Last words."},
	}, events)
	require.Equal(t, "sess-1", stream.SessionID())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, "secret", fake.authHeader)
	require.Contains(t, fake.query, "sample_rate=16000")
	require.Contains(t, fake.query, "format_turns=true")
	require.True(t, fake.terminated)
	// 2000 bytes buffered: one 2000-byte frame (>= 50ms minimum, under the max).
	require.Equal(t, []int{2000}, fake.frames)
}

func TestStreamingRecognizerSplitsLargeChunks(t *testing.T) {
	fake := newFakeRealtimeServer(t, nil)
	stream, err := DialStream(context.Background(), StreamConfig{URL: fake.wsURL(), APIKey: "k"})
	require.NoError(t, err)
	go collect(stream.Events())

	// 16kHz: max frame is 950ms = 30400 bytes.
	require.NoError(t, stream.SendAudio(make([]byte, 31000)))
	require.NoError(t, stream.Close(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, []int{30400, 600}, fake.frames)
}

func TestStreamingRecognizerRejectsSendAfterClose(t *testing.T) {
	fake := newFakeRealtimeServer(t, nil)
	stream, err := DialStream(context.Background(), StreamConfig{URL: fake.wsURL(), APIKey: "k"})
	require.NoError(t, err)
	go collect(stream.Events())

	require.NoError(t, stream.Close(context.Background()))
	require.Error(t, stream.SendAudio([]byte{1, 2}))
	require.NoError(t, stream.Close(context.Background()))
}

func TestStreamingRecognizerAbortEndsEvents(t *testing.T) {
	fake := newFakeRealtimeServer(t, nil)
	stream, err := DialStream(context.Background(), StreamConfig{URL: fake.wsURL(), APIKey: "k"})
	require.NoError(t, err)

	require.NoError(t, stream.Abort())
	require.NoError(t, stream.Abort())
	for event := range stream.Events() {
		require.NotEqual(t, KindError, event.Kind)
	}
}

func TestDialStreamRequiresAPIKey(t *testing.T) {
	_, err := DialStream(context.Background(), StreamConfig{URL: "wss://example.test"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestDialStreamReportsHandshakeStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := DialStream(context.Background(), StreamConfig{
		URL:    "ws" + strings.TrimPrefix(server.URL, "http"),
		APIKey: "bad",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
}

func TestStreamURLAddsParameters(t *testing.T) {
	got, err := streamURL("wss://streaming.example.test/v3/ws?keyterms=go", 8000)
	require.NoError(t, err)
	require.Contains(t, got, "sample_rate=8000")
	require.Contains(t, got, "format_turns=true")
	require.Contains(t, got, "keyterms=go")
}
