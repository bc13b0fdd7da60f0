package recording

import (
	"context"
	"time"
)

// Step is one entry of the processing checklist. Steps after the upload do
// not track remote progress; they pace the wait with local delays.
type Step struct {
	Label   string
	Percent int
	Delay   time.Duration
}

var (
	uploadSteps = []Step{
		{Label: "Preparing your video...", Percent: 10},
		{Label: "Creating video file...", Percent: 20},
		{Label: "Uploading video to server...", Percent: 30},
	}
	analysisSteps = []Step{
		{Label: "Analyzing your performance...", Percent: 50},
		{Label: "Analyzing facial expressions...", Percent: 60, Delay: 2000 * time.Millisecond},
		{Label: "Detecting eye contact...", Percent: 70, Delay: 2000 * time.Millisecond},
		{Label: "Transcribing your speech...", Percent: 80, Delay: 2500 * time.Millisecond},
		{Label: "Evaluating communication skills...", Percent: 85, Delay: 1500 * time.Millisecond},
		{Label: "Generating your report...", Percent: 95, Delay: 1000 * time.Millisecond},
		{Label: "Complete!", Percent: 100, Delay: 500 * time.Millisecond},
	}
)

// Checklist returns the full ordered step list, upload steps first.
func Checklist() []Step {
	out := make([]Step, 0, len(uploadSteps)+len(analysisSteps))
	out = append(out, uploadSteps...)
	return append(out, analysisSteps...)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the wall-clock Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay skips every pause.
func NoDelay(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// walk reports each step, then sleeps its delay. The delay of a step is the
// pause after it is shown, so "Complete!" lingers before hand-off.
func walk(ctx context.Context, steps []Step, sleep Sleeper, show func(Step)) error {
	for _, step := range steps {
		show(step)
		if err := sleep(ctx, step.Delay); err != nil {
			return err
		}
	}
	return nil
}
