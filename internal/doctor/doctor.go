// Package doctor runs readiness diagnostics for config, tools, devices,
// remote services, and storage.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/store"
)

// Status grades a single check. Only StatusFail makes doctor exit non-zero.
type Status string

const (
	StatusOK   Status = "OK"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

type Check struct {
	Name    string
	Status  Status
	Message string
}

func pass(name, format string, args ...any) Check {
	return Check{Name: name, Status: StatusOK, Message: fmt.Sprintf(format, args...)}
}

func warn(name, format string, args ...any) Check {
	return Check{Name: name, Status: StatusWarn, Message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) Check {
	return Check{Name: name, Status: StatusFail, Message: fmt.Sprintf(format, args...)}
}

type Report struct {
	Checks []Check
}

// OK is false when any check failed; warnings do not count.
func (r Report) OK() bool {
	return r.count(StatusFail) == 0
}

func (r Report) count(status Status) int {
	n := 0
	for _, check := range r.Checks {
		if check.Status == status {
			n++
		}
	}
	return n
}

// String prints one "[STATUS] name: message" line per check followed by a
// tally line.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		fmt.Fprintf(&b, "[%s] %s: %s\n", check.Status, check.Name, check.Message)
	}
	fmt.Fprintf(&b, "%d ok, %d warning(s), %d failed", r.count(StatusOK), r.count(StatusWarn), r.count(StatusFail))
	return b.String()
}

// Probes overrides the live checks that touch hardware or the network.
type Probes struct {
	HTTP        *http.Client
	Store       store.Store
	SelectAudio func(ctx context.Context, input, fallback string) (audio.Selection, error)
}

// Run checks the loaded config against the local machine and the network.
func Run(ctx context.Context, loaded config.Loaded, probes Probes) Report {
	cfg := loaded.Config
	if probes.HTTP == nil {
		probes.HTTP = &http.Client{Timeout: 2 * time.Second}
	}
	if probes.SelectAudio == nil {
		probes.SelectAudio = audio.SelectDevice
	}

	checks := []Check{configCheck(loaded)}
	checks = append(checks, checkCommand(cfg.Video.Encoder.Argv, "video.encoder_cmd"))
	if cfg.Speaker.Enable {
		checks = append(checks, checkCommand(cfg.Speaker.Command.Argv, "speaker.cmd"))
	}
	checks = append(checks, checkAudioSelection(ctx, cfg, probes.SelectAudio))
	checks = append(checks, checkCamera(cfg.Video.Device))

	checks = append(checks, checkServices(ctx, probes.HTTP, cfg.Services)...)

	if cfg.STT.Enable {
		checks = append(checks, checkSpeechKey(cfg))
	}
	checks = append(checks, checkLive(cfg))

	if probes.Store != nil {
		checks = append(checks, checkStore(ctx, cfg.Store.Backend, probes.Store))
	}

	return Report{Checks: checks}
}

func configCheck(loaded config.Loaded) Check {
	if !loaded.Exists {
		return warn("config", "%q not found; using defaults", loaded.Path)
	}
	return pass("config", "loaded %q", loaded.Path)
}

func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return fail(name, "command is empty")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fail(name, "%s not found in PATH", argv[0])
	}
	return pass(name, "%s resolves to %s", argv[0], path)
}

// checkAudioSelection runs live device selection so fallbacks show up as
// warnings before a recording starts.
func checkAudioSelection(
	ctx context.Context,
	cfg config.Config,
	selectDevice func(context.Context, string, string) (audio.Selection, error),
) Check {
	const name = "audio.device"
	selection, err := selectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return fail(name, "%s", err)
	}
	if selection.Warning != "" {
		return warn(name, "selected %q (%s)", selection.Device.ID, selection.Warning)
	}
	return pass(name, "selected %q", selection.Device.ID)
}

func checkCamera(device string) Check {
	const name = "video.device"
	device = strings.TrimSpace(device)
	if device == "" {
		return fail(name, "video.device is empty")
	}
	f, err := os.Open(device)
	if err != nil {
		return fail(name, "%s", err)
	}
	_ = f.Close()
	return pass(name, "%s is readable", device)
}

// checkService treats any answer below 500 as reachable.
func checkService(ctx context.Context, client *http.Client, name string, base string) Check {
	base = strings.TrimSpace(base)
	if base == "" {
		return fail(name, "url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return fail(name, "invalid url: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fail(name, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fail(name, "HTTP %d from %s", resp.StatusCode, base)
	}
	return pass(name, "reachable at %s (HTTP %d)", base, resp.StatusCode)
}

// checkServices probes the three backends concurrently and keeps their order.
func checkServices(ctx context.Context, client *http.Client, services config.ServicesConfig) []Check {
	targets := []struct{ name, url string }{
		{"services.interview", services.InterviewURL},
		{"services.analysis", services.AnalysisURL},
		{"services.resume", services.ResumeURL},
	}
	checks := make([]Check, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checks[i] = checkService(ctx, client, target.name, target.url)
		}()
	}
	wg.Wait()
	return checks
}

// checkSpeechKey warns rather than fails: without a key answers are typed.
func checkSpeechKey(cfg config.Config) Check {
	if strings.TrimSpace(cfg.Secrets.STTAPIKey) == "" {
		return warn("stt.api_key", "REHEARSE_STT_API_KEY is not set; answers will be typed")
	}
	return pass("stt.api_key", "REHEARSE_STT_API_KEY is set")
}

func checkLive(cfg config.Config) Check {
	if cfg.Live.Mock {
		return pass("live", "mock rooms enabled")
	}
	if cfg.Secrets.LiveKitAPIKey == "" || cfg.Secrets.LiveKitAPISecret == "" {
		return fail("live", "REHEARSE_LIVEKIT_API_KEY/REHEARSE_LIVEKIT_API_SECRET are not set")
	}
	return pass("live", "LiveKit at %s", cfg.Live.URL)
}

func checkStore(ctx context.Context, backend string, s store.Store) Check {
	name := "store." + backend
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		return fail(name, "%s", err)
	}
	return pass(name, "reachable")
}
