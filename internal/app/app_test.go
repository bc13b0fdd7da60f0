package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/recording"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, nil, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, nil, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "rehearse")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, nil, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := paths.runner(&stdout, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
}

func TestRunnerStopReturnsNoActiveRecording(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := paths.runner(&stdout, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no active rehearse recording")
}

func TestRunnerForwardsCommandsToActiveRecording(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	commands := make(chan string, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "rehearse.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		commands <- req.Command
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: string(fsm.StateRecording)}
		case ipc.CommandStop, ipc.CommandCancel, ipc.CommandRestart:
			return ipc.Response{OK: true, Message: req.Command + " handled"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	sent := []string{ipc.CommandStatus, ipc.CommandStop, ipc.CommandCancel, ipc.CommandRestart}
	for _, cmd := range sent {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		runner := paths.runner(stdout, stderr)

		exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, cmd})
		require.Equal(t, 0, exitCode, cmd)
		if cmd != ipc.CommandStatus {
			require.Equal(t, cmd+" handled\n", stdout.String())
		}
	}

	got := []string{<-commands, <-commands, <-commands, <-commands}
	require.ElementsMatch(t, sent, got)
}

func TestRunnerStatusPrintsStateAndMessage(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "rehearse.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, ipc.CommandStatus, req.Command)
		return ipc.Response{OK: true, State: "analyzing", Message: "Analyzing speech..."}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := paths.runner(&stdout, io.Discard)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "analyzing: Analyzing speech...\n", stdout.String())
}

func TestRunnerStatusFallsBackToIdleWhenServerStateEmpty(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "rehearse.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: ""}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := paths.runner(&stdout, io.Discard)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
}

func TestRunnerForwardReportsRefusedCommand(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "rehearse.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		return ipc.Failed(string(fsm.StateProcessing), "already processing")
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := paths.runner(io.Discard, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "already processing (state: processing)")
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, `{"video":{"device":"/definitely/missing/video9"}}`)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	runner := paths.runner(&stdout, io.Discard)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "[OK] config: loaded")
	require.Contains(t, stdout.String(), "[FAIL] video.device:")
	require.Contains(t, stdout.String(), "store.file")
}

func TestRunnerRecordFailsWhenCaptureCannotStart(t *testing.T) {
	paths := setupRunnerEnv(t, `{
  "video": {"device": "/definitely/missing/video9", "encoder_cmd": "/definitely/missing/encoder"},
  "indicator": {"sound_enable": false},
  "recording": {"simulate_delays": false}
}`)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stderr bytes.Buffer
	runner := paths.runner(io.Discard, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "record"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")

	_, statErr := os.Stat(filepath.Join(paths.runtimeDir, "rehearse.sock"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestLogRecordingResultWritesFailureAndSuccess(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	started := time.Now()
	finished := started.Add(95 * time.Second)

	logRecordingResult(logger, recording.Result{
		State:         fsm.StateComplete,
		StartedAt:     started,
		FinishedAt:    finished,
		Elapsed:       90 * time.Second,
		Device:        "Mic",
		Chunks:        12,
		BytesCaptured: 4096,
		Refs:          recording.Refs{VideoURL: "/uploads/a.webm", AnalysisURL: "/analysis/a.json"},
	})
	require.Contains(t, logBuf.String(), "recording complete")
	require.Contains(t, logBuf.String(), `"elapsed_s":90`)
	require.Contains(t, logBuf.String(), `"analysis_url":"/analysis/a.json"`)

	logBuf.Reset()
	logRecordingResult(logger, recording.Result{
		State:      fsm.StateError,
		StartedAt:  started,
		FinishedAt: finished,
		Err:        errors.New("boom"),
	})
	require.Contains(t, logBuf.String(), "recording failed")
	require.Contains(t, logBuf.String(), "boom")

	require.NotPanics(t, func() { logRecordingResult(nil, recording.Result{}) })
}

func TestRunnerBookListAndUnbook(t *testing.T) {
	paths := setupRunnerEnv(t, `{"live":{"url":"https://live.example.test"}}`)
	ctx := context.Background()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := paths.runner(&stdout, &stderr)

	exitCode := runner.Execute(ctx, []string{
		"--config", paths.configPath, "book",
		"--name", "Ada Lovelace", "--position", "Engineer",
		"--date", "2030-05-01", "--time", "14:30",
	})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "Interview scheduled successfully!")
	require.Contains(t, stdout.String(), "https://live.example.test/rooms/Mock%20Interview%20Ada%20Lovelace%20")

	id := lineValue(t, stdout.String(), "id:")

	stdout.Reset()
	exitCode = runner.Execute(ctx, []string{"--config", paths.configPath, "bookings"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), id)
	require.Contains(t, stdout.String(), "Ada Lovelace")
	require.Contains(t, stdout.String(), "2030-05-01 14:30")

	stdout.Reset()
	exitCode = runner.Execute(ctx, []string{"--config", paths.configPath, "unbook", id})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "deleted "+id+"\n", stdout.String())

	stdout.Reset()
	exitCode = runner.Execute(ctx, []string{"--config", paths.configPath, "bookings"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "No interviews scheduled\n", stdout.String())

	stderr.Reset()
	exitCode = runner.Execute(ctx, []string{"--config", paths.configPath, "unbook", id})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no booking with id")
}

func TestRunnerBookRejectsMissingFields(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stderr bytes.Buffer
	runner := paths.runner(io.Discard, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "book", "--name", "Ada"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "Please fill at least candidate name, date and time.")
}

func TestRunnerLiveJoinsMockRoom(t *testing.T) {
	paths := setupRunnerEnv(t, `{"live":{"mock":true}}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := paths.runner(&stdout, &stderr)

	exitCode := runner.Execute(ctx, []string{"--config", paths.configPath, "live", "--room", "panel-1", "--role", "interviewer"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "Joined panel-1 as Interviewer")
	require.Contains(t, stdout.String(), "https://meet.livekit.io/custom?")
	require.Contains(t, stdout.String(), `rehearse live --room "panel-1" --role candidate`)

	stdout.Reset()
	exitCode = runner.Execute(ctx, []string{"--config", paths.configPath, "live", "--room", "panel-1", "--json"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "panel-1")
}

func TestRunnerLiveRejectsUnknownRole(t *testing.T) {
	paths := setupRunnerEnv(t, `{"live":{"mock":true}}`)

	var stderr bytes.Buffer
	runner := paths.runner(io.Discard, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "live", "--role", "observer"})
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerInterviewRunsTurnsAndRendersFeedback(t *testing.T) {
	var answers []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/interview/start":
			w.Header().Set(interview.SessionHeader, "sess-1")
			_, _ = io.WriteString(w, "Interview Started. Tell me about yourself.")
		case "/api/interview/turn":
			body, _ := io.ReadAll(r.Body)
			answers = append(answers, string(body))
			_, _ = io.WriteString(w, "Why that project?")
		case "/api/interview/end":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"finalVerdict":{"status":"PASS","summary":"Strong."},"strengths":["Depth"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	paths := setupRunnerEnv(t, `{
  "services": {"interview_url": "`+server.URL+`"},
  "speaker": {"enable": false},
  "stt": {"enable": false}
}`)
	resumePath := filepath.Join(t.TempDir(), "cv.pdf")
	require.NoError(t, os.WriteFile(resumePath, []byte("%PDF-1.4"), 0o600))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := paths.runner(&stdout, &stderr)
	runner.Stdin = strings.NewReader("I build storage systems.\n/end\n")

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "interview", "--resume", resumePath})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Len(t, answers, 1)
	require.Contains(t, answers[0], "I build storage systems.")
	require.Contains(t, stdout.String(), "Tell me about yourself.")
	require.Contains(t, stdout.String(), "Why that project?")
	require.Contains(t, stdout.String(), "PASS")
}

// interviewServer fakes the interview service. failTurns and failEnds are
// how many leading calls to each endpoint answer 502.
func interviewServer(t *testing.T, failTurns, failEnds int) (*httptest.Server, *[]string, *atomic.Int32) {
	t.Helper()
	var mu sync.Mutex
	var answers []string
	var ends atomic.Int32
	var turns int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/interview/start":
			w.Header().Set(interview.SessionHeader, "sess-1")
			_, _ = io.WriteString(w, "Interview Started. Tell me about yourself.")
		case "/api/interview/turn":
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			answers = append(answers, string(body))
			turns++
			failing := turns <= failTurns
			mu.Unlock()
			if failing {
				http.Error(w, "upstream timeout", http.StatusBadGateway)
				return
			}
			_, _ = io.WriteString(w, "Why that project?")
		case "/api/interview/end":
			if int(ends.Add(1)) <= failEnds {
				http.Error(w, "upstream timeout", http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"finalVerdict":{"status":"PASS","summary":"Strong."},"strengths":["Depth"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &answers, &ends
}

func interviewRunner(t *testing.T, serverURL, stdin string) (Runner, *bytes.Buffer, *bytes.Buffer, []string) {
	t.Helper()
	paths := setupRunnerEnv(t, `{
  "services": {"interview_url": "`+serverURL+`"},
  "speaker": {"enable": false},
  "stt": {"enable": false}
}`)
	resumePath := filepath.Join(t.TempDir(), "cv.pdf")
	require.NoError(t, os.WriteFile(resumePath, []byte("%PDF-1.4"), 0o600))

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	runner := paths.runner(stdout, stderr)
	runner.Stdin = strings.NewReader(stdin)
	return runner, stdout, stderr, []string{"--config", paths.configPath, "interview", "--resume", resumePath}
}

func TestRunnerInterviewEndCanBeRetried(t *testing.T) {
	server, _, ends := interviewServer(t, 0, 1)
	runner, stdout, stderr, args := interviewRunner(t, server.URL, "/end\n/end\n")

	exitCode := runner.Execute(context.Background(), args)
	require.Equal(t, 0, exitCode, stderr.String())
	require.EqualValues(t, 2, ends.Load())
	require.Contains(t, stderr.String(), "Failed to get final feedback")
	require.Contains(t, stderr.String(), "type /end to try again")
	require.Contains(t, stdout.String(), "PASS")
}

func TestRunnerInterviewEndFailureAtEOFExits(t *testing.T) {
	server, _, ends := interviewServer(t, 0, 1)
	runner, stdout, stderr, args := interviewRunner(t, server.URL, "")

	exitCode := runner.Execute(context.Background(), args)
	require.Equal(t, 1, exitCode)
	require.EqualValues(t, 1, ends.Load())
	require.Contains(t, stderr.String(), "Failed to get final feedback")
	require.NotContains(t, stdout.String(), "PASS")
}

func TestRunnerInterviewResendsAnswerAfterTurnFailure(t *testing.T) {
	server, answers, _ := interviewServer(t, 1, 0)
	runner, stdout, stderr, args := interviewRunner(t, server.URL, "I build storage systems.\n\n/end\n")

	exitCode := runner.Execute(context.Background(), args)
	require.Equal(t, 0, exitCode, stderr.String())
	require.Len(t, *answers, 2)
	require.Equal(t, (*answers)[0], (*answers)[1])
	require.Contains(t, (*answers)[1], "I build storage systems.")
	require.Contains(t, stderr.String(), "Failed to get interviewer response")
	require.Contains(t, stderr.String(), "Press Enter to resend your answer.")
	require.Contains(t, stdout.String(), "Why that project?")
	require.Contains(t, stdout.String(), "PASS")
}

func TestRunnerInterviewRequiresResume(t *testing.T) {
	paths := setupRunnerEnv(t, `{"speaker":{"enable":false},"stt":{"enable":false}}`)

	var stderr bytes.Buffer
	runner := paths.runner(io.Discard, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "interview"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "Please upload your resume")
}

func TestRunnerReportRendersAnalysis(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analysis/take-1.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"scores": {"overall_score": 82}, "gaze": {"percentage": 71.5}}`)
	}))
	defer server.Close()

	paths := setupRunnerEnv(t, `{"services":{"analysis_url":"`+server.URL+`"}}`)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := paths.runner(&stdout, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "report", "--analysis", "/analysis/take-1.json", "--no-color"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "Overall Performance Score: 82")
	require.Contains(t, stdout.String(), "Eye Contact:      71.5%")
	require.NotContains(t, stdout.String(), "\x1b[")
}

type runnerPaths struct {
	configPath string
	runtimeDir string
	envFile    string
}

func (p runnerPaths) runner(stdout io.Writer, stderr io.Writer) Runner {
	return Runner{
		Stdout:   stdout,
		Stderr:   stderr,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		EnvFiles: []string{p.envFile},
	}
}

func setupRunnerEnv(t *testing.T, config string) runnerPaths {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	for _, key := range []string{"REHEARSE_STT_API_KEY", "REHEARSE_LIVEKIT_API_KEY", "REHEARSE_LIVEKIT_API_SECRET", "REHEARSE_AUTH_TOKEN"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if config == "" {
		config = "\n"
	}
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	return runnerPaths{
		configPath: configPath,
		runtimeDir: runtimeDir,
		envFile:    filepath.Join(dir, "missing.env"),
	}
}

func lineValue(t *testing.T, output string, label string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, label) {
			return strings.TrimSpace(strings.TrimPrefix(line, label))
		}
	}
	require.Failf(t, "label not found", "%q in %q", label, output)
	return ""
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
