// Package indicator renders recording progress on the terminal or as desktop
// notifications and plays short audio cues.
package indicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/recording"
)

const defaultAppName = "rehearse"

// Notifier implements recording.Indicator for the configured backend.
type Notifier struct {
	cfg    config.IndicatorConfig
	out    io.Writer
	logger *slog.Logger

	mu                    sync.Mutex
	desktopNotificationID uint32
	inline                bool
	soundMu               sync.Mutex
	play                  func(context.Context, cueKind) error
}

var _ recording.Indicator = (*Notifier)(nil)

// New creates a notifier. Terminal output goes to out.
func New(cfg config.IndicatorConfig, out io.Writer, logger *slog.Logger) *Notifier {
	if out == nil {
		out = io.Discard
	}
	return &Notifier{
		cfg:    cfg,
		out:    out,
		logger: logger,
		play:   emitCue,
	}
}

// ShowRecording signals capture start and emits the start cue.
func (n *Notifier) ShowRecording(ctx context.Context) {
	n.playCue(cueStart)
	n.show(ctx, urgencyNormal, 300000, "● Recording... press Enter or run `rehearse stop` to finish", false)
}

// ShowElapsed refreshes the running timer in place.
func (n *Notifier) ShowElapsed(ctx context.Context, elapsed time.Duration) {
	if !n.cfg.Enable {
		return
	}
	text := "● Recording " + FormatElapsed(elapsed)
	if n.desktop() {
		n.run(ctx, func(ctx context.Context) error { return n.notifyDesktop(ctx, urgencyLow, 300000, text) })
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "\r%s", text)
	n.inline = true
}

// ShowStep reports one processing checklist entry.
func (n *Notifier) ShowStep(ctx context.Context, step recording.Step) {
	n.show(ctx, urgencyLow, 300000, fmt.Sprintf("[%3d%%] %s", step.Percent, step.Label), false)
}

// ShowWarning prints a non-fatal hint.
func (n *Notifier) ShowWarning(ctx context.Context, text string) {
	n.playCue(cueWarning)
	n.show(ctx, urgencyNormal, n.errorTimeout(), "! "+text, false)
}

// ShowError displays a failure message.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		text = "Recording failed"
	}
	n.playCue(cueError)
	n.show(ctx, urgencyCritical, n.errorTimeout(), "✗ "+text, true)
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// CueComplete emits the analysis-complete cue.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// Hide dismisses the desktop notification or ends the terminal line.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	if n.desktop() {
		n.run(ctx, n.dismissDesktop)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.breakLine()
}

// FormatElapsed renders d as M:SS.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func (n *Notifier) show(ctx context.Context, level urgency, timeoutMS int, text string, always bool) {
	if !n.cfg.Enable && !always {
		return
	}
	if n.desktop() {
		n.run(ctx, func(ctx context.Context) error { return n.notifyDesktop(ctx, level, timeoutMS, text) })
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.breakLine()
	fmt.Fprintln(n.out, text)
}

// breakLine terminates an in-place timer line. Callers hold mu.
func (n *Notifier) breakLine() {
	if n.inline {
		fmt.Fprintln(n.out)
		n.inline = false
	}
}

func (n *Notifier) desktop() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

func (n *Notifier) errorTimeout() int {
	if n.cfg.ErrorTimeoutMS <= 0 {
		return 1200
	}
	return n.cfg.ErrorTimeoutMS
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, level urgency, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = defaultAppName
	}

	id, err := notification{
		appName:   appName,
		replaceID: replaceID,
		summary:   text,
		urgency:   level,
		timeoutMS: timeoutMS,
	}.send(ctx)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return closeNotification(ctx, id)
}

// run executes a desktop operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := n.play(ctx, kind); err != nil {
			n.log("indicator audio cue failed", fmt.Errorf("%s cue: %w", kind, err))
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
