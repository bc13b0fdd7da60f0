package indicator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueWarning
	cueError
)

func (k cueKind) String() string {
	switch k {
	case cueStart:
		return "start"
	case cueStop:
		return "stop"
	case cueComplete:
		return "complete"
	case cueWarning:
		return "warning"
	case cueError:
		return "error"
	default:
		return fmt.Sprintf("cue(%d)", int(k))
	}
}

const (
	cueSampleRate = 16000
	cueVolume     = 0.18
	noteGap       = 22 * time.Millisecond
	fadeLimit     = 5 * time.Millisecond
)

// note is one tone of a cue; a zero frequency is a rest.
type note struct {
	hz  float64
	dur time.Duration
}

// Rising pairs mean "go", falling ones mean "done" or "problem".
var cueScores = map[cueKind][]note{
	cueStart:    {{880, 70 * time.Millisecond}, {1175, 70 * time.Millisecond}},
	cueStop:     {{620, 120 * time.Millisecond}},
	cueComplete: {{740, 65 * time.Millisecond}, {988, 90 * time.Millisecond}, {1319, 110 * time.Millisecond}},
	cueWarning:  {{660, 60 * time.Millisecond}, {0, 40 * time.Millisecond}, {660, 60 * time.Millisecond}},
	cueError:    {{494, 110 * time.Millisecond}, {370, 160 * time.Millisecond}},
}

var (
	renderedMu sync.Mutex
	rendered   = map[cueKind][]int16{}
)

// cueSamples renders a cue once and caches the PCM.
func cueSamples(kind cueKind) []int16 {
	score, ok := cueScores[kind]
	if !ok {
		return nil
	}
	renderedMu.Lock()
	defer renderedMu.Unlock()
	if pcm, ok := rendered[kind]; ok {
		return pcm
	}
	pcm := renderScore(score)
	rendered[kind] = pcm
	return pcm
}

func emitCue(ctx context.Context, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playPCM(ctx, kind, samples)
}

func playPCM(ctx context.Context, kind cueKind, samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(defaultAppName),
		pulse.ClientApplicationIconName(notifyIcon),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	remaining := samples
	source := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil || len(remaining) == 0 {
			return 0, pulse.EndOfData
		}
		n := copy(buf, remaining)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		source,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("rehearse "+kind.String()+" cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play %s cue: %w", kind, err)
	}
	return nil
}

func renderScore(score []note) []int16 {
	var pcm []int16
	for i, n := range score {
		if i > 0 {
			pcm = append(pcm, make([]int16, sampleCount(noteGap))...)
		}
		if n.hz <= 0 {
			pcm = append(pcm, make([]int16, sampleCount(n.dur))...)
			continue
		}
		pcm = append(pcm, renderTone(n.hz, n.dur, cueVolume)...)
	}
	return pcm
}

// renderTone is a sine with a short raised-cosine fade at both ends.
func renderTone(hz float64, dur time.Duration, volume float64) []int16 {
	count := sampleCount(dur)
	if count <= 0 || hz <= 0 || volume <= 0 {
		return nil
	}
	fade := min(count/10, sampleCount(fadeLimit))
	fade = max(fade, 1)

	pcm := make([]int16, count)
	for i := range pcm {
		gain := min(fadeGain(i, fade), fadeGain(count-1-i, fade))
		phase := 2 * math.Pi * hz * float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * volume * gain * math.MaxInt16))
	}
	return pcm
}

func fadeGain(pos int, fade int) float64 {
	if pos >= fade {
		return 1
	}
	return 0.5 - 0.5*math.Cos(math.Pi*float64(pos)/float64(fade))
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
