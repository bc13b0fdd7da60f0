package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/indicator"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/recording"
	"github.com/rbright/rehearse/internal/report"
)

func newMediaController(rt runtime) *media.Controller {
	return media.NewController(media.DeviceOpener{
		AudioInput:    rt.cfg.Audio.Input,
		AudioFallback: rt.cfg.Audio.Fallback,
		SampleRate:    rt.cfg.STT.SampleRate,
		VideoDevice:   rt.cfg.Video.Device,
		EncoderArgv:   rt.cfg.Video.Encoder.Argv,
	}, rt.logger)
}

func newArchiver(ctx context.Context, rt runtime) recording.Archiver {
	if !rt.cfg.Archive.Enable {
		return nil
	}
	archiver, err := recording.NewMinioArchiver(recording.ArchiveConfig{
		Endpoint:   rt.cfg.Archive.Endpoint,
		Bucket:     rt.cfg.Archive.Bucket,
		AccessKey:  rt.cfg.Secrets.ArchiveAccessKey,
		SecretKey:  rt.cfg.Secrets.ArchiveSecretKey,
		UseSSL:     rt.cfg.Archive.UseSSL,
		PresignTTL: time.Duration(rt.cfg.Archive.PresignTTLMinutes) * time.Minute,
	})
	if err != nil {
		rt.logger.Warn("archive disabled", "error", err.Error())
		return nil
	}
	bucketCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := archiver.EnsureBucket(bucketCtx); err != nil {
		rt.logger.Warn("archive bucket unavailable", "bucket", rt.cfg.Archive.Bucket, "error", err.Error())
	}
	return archiver
}

// commandRecord owns the control socket and runs takes until the user quits.
func (r Runner) commandRecord(ctx context.Context, rt runtime) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a recording is already running; use `rehearse stop` or `rehearse cancel`")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	sleep := recording.Sleeper(recording.SleepContext)
	if !rt.cfg.Recording.SimulateDelays {
		sleep = recording.NoDelay
	}
	controller := recording.NewController(
		newMediaController(rt),
		recording.HTTPUploader{BaseURL: rt.cfg.Services.AnalysisURL, HTTP: &http.Client{}},
		recording.Options{
			Logger:         rt.logger,
			Indicator:      indicator.New(rt.cfg.Indicator, r.Stderr, rt.logger),
			Archiver:       newArchiver(ctx, rt),
			MinRecommended: time.Duration(rt.cfg.Recording.MinRecommendedSeconds) * time.Second,
			Sleep:          sleep,
		},
	)

	restarted := make(chan struct{}, 1)
	signalRestart := func() {
		select {
		case restarted <- struct{}{}:
		default:
		}
	}
	handler := ipc.HandlerFunc(func(ctx context.Context, req ipc.Request) ipc.Response {
		resp := controller.Handle(ctx, req)
		if req.Command == ipc.CommandRestart && resp.OK {
			signalRestart()
		}
		return resp
	})

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, handler)
	}()

	stdinClosed := r.watchEnter(serverCtx, controller, signalRestart)

	exitCode := 0
	for {
		result := controller.Run(ctx)
		logRecordingResult(rt.logger, result)
		exitCode = r.printRecordingResult(ctx, rt, result)
		if result.Cancelled || stdinClosed == nil {
			break
		}

		fmt.Fprintln(r.Stdout, "Press Enter or run `rehearse restart` to record again; Ctrl+C to quit.")
		select {
		case <-restarted:
			continue
		case <-stdinClosed:
		case <-ctx.Done():
		}
		break
	}

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	return exitCode
}

// watchEnter maps Enter to stop while recording and to restart afterwards.
// It returns nil when there is no interactive input.
func (r Runner) watchEnter(ctx context.Context, controller *recording.Controller, restarted func()) <-chan struct{} {
	if r.Stdin == nil {
		return nil
	}
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		scanner := bufio.NewScanner(r.Stdin)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			switch controller.State() {
			case fsm.StateRecording:
				_ = controller.RequestStop()
			case fsm.StateComplete, fsm.StateError:
				if controller.Restart() == nil {
					restarted()
				}
			}
		}
	}()
	return closed
}

func (r Runner) printRecordingResult(ctx context.Context, rt runtime, result recording.Result) int {
	if result.Warning != "" {
		fmt.Fprintln(r.Stderr, result.Warning)
	}
	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %s\n", apperr.Message(result.Err))
		return 1
	}

	if result.Archived.URL != "" {
		fmt.Fprintf(r.Stdout, "Archived copy: %s\n", result.Archived.URL)
	}
	if result.Refs.AnalysisURL == "" {
		fmt.Fprintf(r.Stdout, "Video: %s\n", result.Refs.VideoURL)
		return 0
	}

	analysis, err := report.Fetch(ctx, rt.http, rt.cfg.Services.AnalysisURL, result.Refs.AnalysisURL)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %s\n", apperr.Message(err))
		fmt.Fprintf(r.Stdout, "Analysis: %s\n", result.Refs.AnalysisURL)
		rt.logger.Error("fetch analysis failed", "analysis_url", result.Refs.AnalysisURL, "error", err.Error())
		return 1
	}
	if err := report.RenderAnalysis(r.Stdout, analysis, result.Refs.VideoURL, report.Options{Color: colorEnabled(r.Stdout)}); err != nil {
		return r.fail(rt.logger, "render analysis failed", err)
	}
	return 0
}

func logRecordingResult(logger *slog.Logger, result recording.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"elapsed_s", int(result.Elapsed / time.Second),
		"device", result.Device,
		"chunks", result.Chunks,
		"bytes_captured", result.BytesCaptured,
		"upload_latency_ms", result.UploadLatency.Milliseconds(),
		"video_url", result.Refs.VideoURL,
		"analysis_url", result.Refs.AnalysisURL,
		"archive_key", result.Archived.Key,
	}

	if result.Err != nil && !result.Cancelled {
		logger.Error("recording failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("recording complete", fields...)
}
