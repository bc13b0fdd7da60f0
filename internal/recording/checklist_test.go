package recording

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChecklistOrder(t *testing.T) {
	steps := Checklist()
	require.Len(t, steps, 10)
	require.Equal(t, "Preparing your video...", steps[0].Label)
	require.Equal(t, "Complete!", steps[len(steps)-1].Label)
	for i := 1; i < len(steps); i++ {
		require.Greater(t, steps[i].Percent, steps[i-1].Percent)
	}
	require.Equal(t, 2500*time.Millisecond, steps[6].Delay)
}

func TestWalkStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var shown []string
	err := walk(ctx, analysisSteps, func(ctx context.Context, d time.Duration) error {
		if len(shown) == 2 {
			cancel()
		}
		return ctx.Err()
	}, func(step Step) { shown = append(shown, step.Label) })

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"Analyzing your performance...", "Analyzing facial expressions..."}, shown)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, NoDelay(ctx, time.Hour), context.Canceled)
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "recordings/abc.webm", objectKey("abc", "interview.WEBM"))
	require.Equal(t, "recordings/abc.bin", objectKey("abc", "raw"))
}
