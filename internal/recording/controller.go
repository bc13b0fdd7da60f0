// Package recording coordinates one video-interview take: capture, packaging,
// upload, the processing checklist, and hand-off of report references.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/media"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// DefaultMinRecommended is the shortest take the analysis is tuned for.
const DefaultMinRecommended = 30 * time.Second

// ShortTakeWarning is shown, never enforced, when a take ends early.
const ShortTakeWarning = "Tip: Record for at least %d seconds for accurate analysis"

// ErrNotRecording is returned by RequestStop outside the Recording state.
var ErrNotRecording = errors.New("not recording")

// Result is the complete output of one Run invocation.
type Result struct {
	State         fsm.State
	Err           error
	Cancelled     bool
	Warning       string
	Refs          Refs
	Archived      Archived
	Device        string
	Chunks        int
	BytesCaptured int64
	Elapsed       time.Duration
	UploadLatency time.Duration
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Capturer is the media surface the controller needs.
type Capturer interface {
	Acquire(ctx context.Context, constraints media.Constraints) (*media.Handle, error)
}

// Indicator is the recording-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowElapsed(context.Context, time.Duration)
	ShowStep(context.Context, Step)
	ShowWarning(context.Context, string)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueComplete(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves controller flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)              {}
func (noopIndicator) ShowElapsed(context.Context, time.Duration) {}
func (noopIndicator) ShowStep(context.Context, Step)             {}
func (noopIndicator) ShowWarning(context.Context, string)        {}
func (noopIndicator) ShowError(context.Context, string)          {}
func (noopIndicator) CueStop(context.Context)                    {}
func (noopIndicator) CueComplete(context.Context)                {}
func (noopIndicator) Hide(context.Context)                       {}

// Options wires optional collaborators.
type Options struct {
	Logger         *slog.Logger
	Indicator      Indicator
	Archiver       Archiver
	MinRecommended time.Duration
	Sleep          Sleeper
	Tick           time.Duration
	Now            func() time.Time
}

// Controller orchestrates recording state transitions and side effects.
// At most one take is active per controller.
type Controller struct {
	capture   Capturer
	upload    Uploader
	archive   Archiver
	indicator Indicator
	logger    *slog.Logger
	minTake   time.Duration
	sleep     Sleeper
	tick      time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	state     fsm.State
	startedAt time.Time
	elapsed   time.Duration
	chunks    [][]byte
	step      Step
	lastErr   string

	actions chan action
}

// NewController constructs a recording controller with safe default fallbacks.
func NewController(capture Capturer, upload Uploader, opts Options) *Controller {
	c := &Controller{
		capture:   capture,
		upload:    upload,
		archive:   opts.Archiver,
		indicator: opts.Indicator,
		logger:    opts.Logger,
		minTake:   opts.MinRecommended,
		sleep:     opts.Sleep,
		tick:      opts.Tick,
		now:       opts.Now,
		state:     fsm.StateIdle,
		actions:   make(chan action, 1),
	}
	if c.indicator == nil {
		c.indicator = noopIndicator{}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.minTake < 0 {
		c.minTake = 0
	}
	if c.sleep == nil {
		c.sleep = SleepContext
	}
	if c.tick <= 0 {
		c.tick = time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Elapsed returns whole recorded seconds for the current or last take.
func (c *Controller) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == fsm.StateRecording {
		return c.now().Sub(c.startedAt).Truncate(time.Second)
	}
	return c.elapsed
}

func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run executes one take from start to Complete, Error, or cancellation.
// Cancelling ctx while recording releases devices and returns to Idle.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: c.now()}
	finish := func() Result {
		result.State = c.State()
		result.Elapsed = c.Elapsed()
		result.FinishedAt = c.now()
		return result
	}

	if err := c.transition(fsm.EventStart); err != nil {
		result.Err = err
		return finish()
	}
	c.mu.Lock()
	c.startedAt = c.now()
	c.elapsed = 0
	c.chunks = nil
	c.step = Step{}
	c.lastErr = ""
	c.mu.Unlock()
	c.drainActions()

	captureCtx, stopCapture := context.WithCancel(context.WithoutCancel(ctx))
	defer stopCapture()

	handle, err := c.capture.Acquire(captureCtx, media.Constraints{Video: true, Audio: true})
	if err != nil {
		result.Err = c.fail(ctx, permissionError(err))
		return finish()
	}
	defer handle.Close()
	result.Device = handle.Info().Device

	if err := handle.Start(); err != nil {
		result.Err = c.fail(ctx, permissionError(err))
		return finish()
	}
	c.indicator.ShowRecording(ctx)

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for chunk := range handle.Chunks() {
			c.mu.Lock()
			c.chunks = append(c.chunks, chunk)
			c.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = handle.Stop()
			<-collected
			c.mu.Lock()
			c.elapsed = c.now().Sub(c.startedAt).Truncate(time.Second)
			c.chunks = nil
			c.mu.Unlock()
			_ = c.transition(fsm.EventCancel)
			c.hide()
			result.Cancelled = true
			result.Err = ctx.Err()
			return finish()
		case <-ticker.C:
			c.indicator.ShowElapsed(ctx, c.Elapsed())
		case a := <-c.actions:
			switch a {
			case actionCancel:
				_ = handle.Stop()
				<-collected
				c.mu.Lock()
				c.elapsed = c.now().Sub(c.startedAt).Truncate(time.Second)
				c.chunks = nil
				c.mu.Unlock()
				_ = c.transition(fsm.EventCancel)
				c.hide()
				result.Cancelled = true
				return finish()
			case actionStop:
				return c.process(ctx, handle, collected, &result, finish)
			default:
				result.Err = c.fail(ctx, fmt.Errorf("unknown action %d", a))
				return finish()
			}
		}
	}
}

// process runs Recording -> Processing -> Complete|Error.
func (c *Controller) process(
	ctx context.Context,
	handle *media.Handle,
	collected <-chan struct{},
	result *Result,
	finish func() Result,
) Result {
	elapsed := c.now().Sub(c.startedAt).Truncate(time.Second)
	c.mu.Lock()
	c.elapsed = elapsed
	c.mu.Unlock()

	if elapsed < c.minTake {
		result.Warning = fmt.Sprintf(ShortTakeWarning, int(c.minTake/time.Second))
		c.indicator.ShowWarning(ctx, result.Warning)
		c.logger.Warn("recording shorter than recommended",
			"elapsed_s", int(elapsed/time.Second),
			"min_recommended_s", int(c.minTake/time.Second),
		)
	}

	if err := c.transition(fsm.EventStop); err != nil {
		result.Err = c.fail(ctx, err)
		return finish()
	}
	c.showStep(ctx, uploadSteps[0])

	stopErr := handle.Stop()
	<-collected
	c.indicator.CueStop(ctx)
	if stopErr != nil {
		c.logger.Warn("capture stop reported error", "error", stopErr)
	}

	info := handle.Info()
	c.showStep(ctx, uploadSteps[1])
	payload := c.packageChunks(info)
	result.Chunks = payload.chunks
	result.BytesCaptured = int64(len(payload.Data))

	var (
		archiveWG sync.WaitGroup
		archived  Archived
	)
	if c.archive != nil {
		archiveWG.Add(1)
		go func() {
			defer archiveWG.Done()
			stored, err := c.archive.Archive(context.WithoutCancel(ctx), payload.Payload)
			if err != nil {
				c.logger.Error("recording archive failed", "error", err, "key", stored.Key)
				return
			}
			archived = stored
			c.logger.Info("recording archived", "key", stored.Key, "url", stored.URL)
		}()
	}
	end := func() Result {
		archiveWG.Wait()
		result.Archived = archived
		return finish()
	}

	c.showStep(ctx, uploadSteps[2])
	uploadStarted := c.now()
	resp, err := c.upload.Upload(ctx, payload.Payload)
	result.UploadLatency = c.now().Sub(uploadStarted)
	if err != nil {
		result.Err = c.fail(ctx, apperr.Upload("Failed to process interview: Failed to upload video", err))
		return end()
	}

	if !resp.Success {
		reason := resp.failureReason()
		result.Err = c.fail(ctx, apperr.Upload("Failed to process interview: "+reason, errors.New(reason)))
		return end()
	}
	result.Refs = Refs{VideoURL: resp.VideoURL, AnalysisURL: resp.AnalysisURL}

	if err := walk(ctx, analysisSteps, c.sleep, func(step Step) { c.showStep(ctx, step) }); err != nil {
		result.Err = c.fail(ctx, err)
		return end()
	}

	if err := c.transition(fsm.EventComplete); err != nil {
		result.Err = c.fail(ctx, err)
		return end()
	}
	c.indicator.CueComplete(ctx)
	c.hide()
	return end()
}

type packaged struct {
	Payload
	chunks int
}

// packageChunks concatenates and clears the buffered chunks exactly once.
func (c *Controller) packageChunks(info media.Info) packaged {
	c.mu.Lock()
	chunks := c.chunks
	c.chunks = nil
	c.mu.Unlock()

	data := bytes.Join(chunks, nil)
	mimeType := info.MIMEType
	if mimeType == "" {
		mimeType = media.WebMType
	}
	filename := info.Filename
	if filename == "" {
		filename = media.WebMFilename
	}
	return packaged{
		Payload: Payload{Data: data, MIMEType: mimeType, Filename: filename},
		chunks:  len(chunks),
	}
}

func (c *Controller) showStep(ctx context.Context, step Step) {
	c.mu.Lock()
	c.step = step
	c.mu.Unlock()
	c.indicator.ShowStep(ctx, step)
}

// fail moves to Error, shows the message, and returns err.
func (c *Controller) fail(ctx context.Context, err error) error {
	_ = c.transition(fsm.EventFail)
	msg := apperr.Message(err)
	c.mu.Lock()
	c.lastErr = msg
	c.chunks = nil
	c.mu.Unlock()
	c.indicator.ShowError(ctx, msg)
	return err
}

func (c *Controller) hide() {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	c.indicator.Hide(cleanupCtx)
}

func (c *Controller) drainActions() {
	for {
		select {
		case <-c.actions:
		default:
			return
		}
	}
}

func permissionError(err error) error {
	if apperr.IsKind(err, apperr.KindPermission) || errors.Is(err, media.ErrBusy) {
		return err
	}
	return apperr.Permission(media.PermissionMessage, err)
}

// RequestStop asks the active take to stop and begin processing.
func (c *Controller) RequestStop() error {
	resp := c.requestStop("stop")
	if !resp.OK {
		return fmt.Errorf("%w: %s", ErrNotRecording, resp.Error)
	}
	return nil
}

// Restart returns a finished or failed take to Idle with elapsed reset.
func (c *Controller) Restart() error {
	if err := c.transition(fsm.EventRestart); err != nil {
		return err
	}
	c.mu.Lock()
	c.elapsed = 0
	c.step = Step{}
	c.lastErr = ""
	c.mu.Unlock()
	return nil
}

// Handle serves IPC commands for the active recording.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.status()
	case ipc.CommandStop:
		return c.requestStop(ipc.CommandStop)
	case ipc.CommandCancel:
		return c.requestCancel()
	case ipc.CommandRestart:
		state := c.State()
		if err := c.Restart(); err != nil {
			return ipc.Failed(string(state), fmt.Sprintf("cannot restart from state %s", state))
		}
		return ipc.Response{OK: true, State: string(c.State()), Message: "ready"}
	default:
		return ipc.Failed(string(c.State()), fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func (c *Controller) status() ipc.Response {
	state := c.State()
	c.mu.RLock()
	step, lastErr := c.step, c.lastErr
	c.mu.RUnlock()

	var message string
	switch state {
	case fsm.StateRecording:
		message = fmt.Sprintf("recording %s", formatElapsed(c.Elapsed()))
	case fsm.StateProcessing:
		message = fmt.Sprintf("%s (%d%%)", step.Label, step.Percent)
	case fsm.StateError:
		message = lastErr
	}
	return ipc.Response{OK: true, State: string(state), Message: message}
}

// requestStop enqueues a stop action when state permits it.
func (c *Controller) requestStop(source string) ipc.Response {
	state := c.State()
	if state == fsm.StateProcessing {
		return ipc.Failed(string(state), "already processing")
	}
	if state != fsm.StateRecording {
		return ipc.Failed(string(state), fmt.Sprintf("cannot %s from state %s", source, state))
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
}

// requestCancel enqueues a cancel action when state permits it.
func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	if state != fsm.StateRecording {
		return ipc.Failed(string(state), fmt.Sprintf("cannot cancel from state %s", state))
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "cancel already requested"}
	}
}

// formatElapsed renders d as M:SS.
func formatElapsed(d time.Duration) string {
	seconds := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
