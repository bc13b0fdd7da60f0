package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/cli"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/report"
	"github.com/rbright/rehearse/internal/speaker"
	"github.com/rbright/rehearse/internal/speech"
	"github.com/rbright/rehearse/internal/transcript"
)

const interviewHelp = `Type your answer and press Enter to send it.
  /voice  dictate the next answer (Enter stops and sends)
  /end    end the interview and show feedback
  /quit   leave without feedback`

func (r Runner) commandInterview(ctx context.Context, rt runtime, parsed cli.Parsed) int {
	client, err := interview.NewClient(interview.ClientConfig{
		BaseURL:    rt.cfg.Services.InterviewURL,
		HTTPClient: rt.http,
		AuthToken:  rt.cfg.Secrets.AuthToken,
		Validator:  rt.validator,
		Logger:     rt.logger,
	})
	if err != nil {
		return r.fail(rt.logger, "interview client setup failed", err)
	}

	log := transcript.NewLog(transcript.NewFollower(r.Stdout))
	if rt.cfg.Speaker.Enable {
		voice := speaker.New(rt.cfg.Speaker.Command.Argv, rt.logger)
		defer voice.Close()
		log.Observe(transcript.NewSpeakTrigger(voice, rt.logger))
	}

	adapter := speech.NewAdapter(r.speechDialer(rt), speech.Options{
		Logger: rt.logger,
		OnInterim: func(preview string) {
			fmt.Fprintf(r.Stderr, "\r… %s", preview)
		},
		OnError: func(err error) {
			fmt.Fprintf(r.Stderr, "\nwarning: %s; keep typing your answer\n", apperr.Message(err))
		},
	})
	dictation := speech.NewDictation(newMediaController(rt), adapter, speech.DictationConfig{
		SampleRate: rt.cfg.STT.SampleRate,
		DumpAudio:  rt.cfg.Debug.EnableAudioDump,
		Logger:     rt.logger,
	})
	defer dictation.Cancel()

	fmt.Fprintln(r.Stdout, "Starting interview...")
	startedAt := time.Now()
	session, err := client.Begin(ctx, interview.StartRequest{
		ResumePath:         parsed.Flag("resume"),
		JobDescriptionPath: parsed.Flag("job"),
		DifficultyLevel:    parsed.Flag("difficulty"),
		InterviewType:      parsed.Flag("type"),
	}, log)
	if err != nil {
		return r.fail(rt.logger, "interview start failed", err)
	}
	rt.logger.Info("interview started", "session_id", session.ID(), "start_ms", time.Since(startedAt).Milliseconds())
	fmt.Fprintln(r.Stderr, interviewHelp)

	loop := &interviewLoop{
		runner:    r,
		rt:        rt,
		session:   session,
		adapter:   adapter,
		dictation: dictation,
		autoVoice: parsed.Bool("voice"),
	}
	return loop.run(ctx)
}

func (r Runner) speechDialer(rt runtime) speech.Dialer {
	if !rt.cfg.STT.Enable || strings.TrimSpace(rt.cfg.Secrets.STTAPIKey) == "" {
		return nil
	}
	return speech.NewDialer(speech.StreamConfig{
		URL:        rt.cfg.STT.URL,
		APIKey:     rt.cfg.Secrets.STTAPIKey,
		SampleRate: rt.cfg.STT.SampleRate,
		Logger:     rt.logger,
	})
}

type interviewLoop struct {
	runner    Runner
	rt        runtime
	session   *interview.Session
	adapter   *speech.Adapter
	dictation *speech.Dictation
	autoVoice bool
}

func (l *interviewLoop) run(ctx context.Context) int {
	stdin := l.runner.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	lines := readLines(ctx, stdin)

	for {
		if l.autoVoice && !l.dictation.Active() {
			l.startVoice(ctx)
		}
		fmt.Fprint(l.runner.Stderr, "> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(l.runner.Stdout)
			return 0
		case line, ok = <-lines:
		}
		if !ok {
			code, _ := l.end(ctx, false)
			return code
		}

		switch strings.TrimSpace(line) {
		case "/quit":
			return 0
		case "/end":
			if code, done := l.end(ctx, true); done {
				return code
			}
			continue
		case "/voice":
			l.startVoice(ctx)
			continue
		}

		if l.dictation.Active() {
			if _, err := l.dictation.Stop(ctx); err != nil {
				l.rt.logger.Warn("dictation stop failed", "error", err.Error())
			}
			fmt.Fprintln(l.runner.Stderr)
		}
		l.appendTyped(line)
		l.submit(ctx)
	}
}

func (l *interviewLoop) appendTyped(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if strings.TrimSpace(l.adapter.Answer()) != "" {
		line = " " + line
	}
	l.adapter.Type(line)
}

func (l *interviewLoop) submit(ctx context.Context) {
	answer := strings.TrimSpace(l.adapter.Take())
	if _, err := l.session.SubmitTurn(ctx, answer); err != nil {
		fmt.Fprintf(l.runner.Stderr, "error: %s\n", apperr.Message(err))
		if apperr.IsKind(err, apperr.KindNetwork) {
			l.adapter.Set(answer)
			fmt.Fprintln(l.runner.Stderr, "Press Enter to resend your answer.")
		}
	}
}

func (l *interviewLoop) startVoice(ctx context.Context) {
	if !l.adapter.Available() {
		fmt.Fprintln(l.runner.Stderr, "Speech recognition is not available; type your answer instead.")
		l.autoVoice = false
		return
	}
	if err := l.dictation.Start(ctx); err != nil {
		fmt.Fprintf(l.runner.Stderr, "error: %s\n", apperr.Message(err))
		l.autoVoice = false
		return
	}
	fmt.Fprintln(l.runner.Stderr, "Listening... press Enter when you are done.")
}

// end asks for final feedback. With canRetry a failed request keeps the
// session open and reports done=false so the loop reads the next line.
func (l *interviewLoop) end(ctx context.Context, canRetry bool) (code int, done bool) {
	l.dictation.Cancel()
	fmt.Fprintln(l.runner.Stdout, "\nEnding interview...")

	var feedback report.Feedback
	err := interview.ErrTurnInFlight
	if !l.session.Busy() {
		feedback, err = l.session.End(ctx)
	}
	switch {
	case errors.Is(err, interview.ErrSessionEnded):
		return 0, true
	case err != nil && canRetry && ctx.Err() == nil:
		fmt.Fprintf(l.runner.Stderr, "error: %s\n", apperr.Message(err))
		fmt.Fprintln(l.runner.Stderr, "The interview is still open; type /end to try again or /quit to leave.")
		l.rt.logger.Warn("interview end failed", "session_id", l.session.ID(), "error", err.Error())
		return 0, false
	case err != nil:
		return l.runner.fail(l.rt.logger, "interview end failed", err), true
	}
	l.rt.logger.Info("interview ended", "session_id", l.session.ID(), "turns", l.session.Transcript().Len())

	fmt.Fprintln(l.runner.Stdout)
	if err := report.RenderFeedback(l.runner.Stdout, &feedback, report.Options{Color: colorEnabled(l.runner.Stdout)}); err != nil {
		return l.runner.fail(l.rt.logger, "render feedback failed", err), true
	}
	return 0, true
}

// readLines delivers stdin lines until EOF or ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
