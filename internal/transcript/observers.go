package transcript

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Follower prints entries as the log grows, keeping the newest entry last
// on screen. A rollback prints a withdrawal note instead of rewriting history.
type Follower struct {
	w io.Writer

	mu    sync.Mutex
	shown int
}

// NewFollower writes to w.
func NewFollower(w io.Writer) *Follower {
	return &Follower{w: w}
}

func (f *Follower) Changed(entries []Utterance) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(entries) < f.shown {
		fmt.Fprintln(f.w, "(last answer withdrawn)")
		f.shown = len(entries)
		return
	}
	for _, entry := range entries[f.shown:] {
		fmt.Fprintf(f.w, "\n%s: %s\n", entry.Speaker.Label(), entry.Text)
	}
	f.shown = len(entries)
}

// Voice plays interviewer text aloud. Speak cancels any playback in progress.
type Voice interface {
	Speak(text string)
}

// SpeakTrigger voices each newly appended interviewer utterance once.
// Interviewer entries are never rolled back, so the index identifies them.
type SpeakTrigger struct {
	voice  Voice
	logger *slog.Logger

	mu        sync.Mutex
	lastIndex int
	lastText  string
}

// NewSpeakTrigger wires voice; a nil logger disables debug output.
func NewSpeakTrigger(voice Voice, logger *slog.Logger) *SpeakTrigger {
	return &SpeakTrigger{voice: voice, logger: logger, lastIndex: -1}
}

func (s *SpeakTrigger) Changed(entries []Utterance) {
	index := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Speaker == Interviewer {
			index = i
			break
		}
	}
	if index < 0 {
		return
	}

	text := entries[index].Text
	s.mu.Lock()
	if index == s.lastIndex && text == s.lastText {
		s.mu.Unlock()
		return
	}
	s.lastIndex = index
	s.lastText = text
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("speaking interviewer turn", "index", index, "chars", len(text))
	}
	s.voice.Speak(text)
}
