// Package transcript holds the ordered interviewer/candidate turn log and
// the observers that react when it grows.
package transcript

import (
	"fmt"
	"io"
	"sync"
)

// Role identifies who spoke an utterance.
type Role string

const (
	Interviewer Role = "interviewer"
	Candidate   Role = "candidate"
)

// Label is the display name for r.
func (r Role) Label() string {
	switch r {
	case Interviewer:
		return "Interviewer"
	case Candidate:
		return "You"
	default:
		return string(r)
	}
}

// Utterance is one immutable transcript entry.
type Utterance struct {
	Speaker Role   `json:"speaker"`
	Text    string `json:"text"`
}

// Observer is notified synchronously with a snapshot after every change.
// Snapshots arrive in the order the changes were made. An observer must not
// modify the log it observes.
type Observer interface {
	Changed(entries []Utterance)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(entries []Utterance)

func (f ObserverFunc) Changed(entries []Utterance) {
	f(entries)
}

// Log is append-only except for rolling back the most recent candidate turn.
// Writers may be concurrent: notifyMu is held across a change and its
// notification so observers never see an older snapshot after a newer one.
type Log struct {
	notifyMu  sync.Mutex
	mu        sync.Mutex
	entries   []Utterance
	observers []Observer
}

// NewLog builds an empty log.
func NewLog(observers ...Observer) *Log {
	return &Log{observers: append([]Observer(nil), observers...)}
}

// Observe registers another observer.
func (l *Log) Observe(observer Observer) {
	l.mu.Lock()
	l.observers = append(l.observers, observer)
	l.mu.Unlock()
}

// Append adds u and returns its index.
func (l *Log) Append(u Utterance) int {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	l.entries = append(l.entries, u)
	index := len(l.entries) - 1
	snapshot, observers := l.snapshotLocked()
	l.mu.Unlock()

	notify(observers, snapshot)
	return index
}

// RollbackLast removes the trailing entry only when it was spoken by role.
func (l *Log) RollbackLast(role Role) bool {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	n := len(l.entries)
	if n == 0 || l.entries[n-1].Speaker != role {
		l.mu.Unlock()
		return false
	}
	l.entries = l.entries[:n-1]
	snapshot, observers := l.snapshotLocked()
	l.mu.Unlock()

	notify(observers, snapshot)
	return true
}

// Entries returns a snapshot in chronological order.
func (l *Log) Entries() []Utterance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Utterance(nil), l.entries...)
}

// Len reports the entry count.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Last returns the newest entry.
func (l *Log) Last() (Utterance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Utterance{}, false
	}
	return l.entries[len(l.entries)-1], true
}

func (l *Log) snapshotLocked() ([]Utterance, []Observer) {
	return append([]Utterance(nil), l.entries...), append([]Observer(nil), l.observers...)
}

func notify(observers []Observer, snapshot []Utterance) {
	for _, observer := range observers {
		observer.Changed(snapshot)
	}
}

// Render writes every entry as "Label: text" lines.
func Render(w io.Writer, entries []Utterance) error {
	for _, entry := range entries {
		if _, err := fmt.Fprintf(w, "%s: %s\n", entry.Speaker.Label(), entry.Text); err != nil {
			return err
		}
	}
	return nil
}
