// Package app dispatches parsed commands and wires the runtime components.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/cli"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/doctor"
	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/store"
	"github.com/rbright/rehearse/internal/validation"
	"github.com/rbright/rehearse/internal/version"
)

const binaryName = "rehearse"

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// EnvFiles overrides the .env files consulted for secrets.
	EnvFiles []string
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// runtime carries what every command needs after config is loaded.
type runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	http      *http.Client
	validator *validation.Validator
}

func (rt runtime) openStore() (store.Store, error) {
	return store.Open(rt.cfg.Store, rt.cfg.Secrets.RedisPassword)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logger := r.Logger
	if logger == nil {
		logRuntime, err := logging.New()
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
			return 1
		}
		defer func() { _ = logRuntime.Close() }()
		logger = logRuntime.Logger
		logger.Debug("runtime log opened", "path", logRuntime.Path)
	}

	cfgLoaded, err := config.LoadWithSecrets(parsed.ConfigPath, r.EnvFiles...)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"version", version.String(),
	)

	rt := runtime{
		cfg:       cfgLoaded.Config,
		logger:    logger,
		http:      &http.Client{Timeout: time.Duration(cfgLoaded.Config.Services.TimeoutMS) * time.Millisecond},
		validator: validation.New(),
	}

	switch parsed.Command {
	case cli.CommandDoctor:
		return r.commandDoctor(ctx, rt, cfgLoaded)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop, cli.CommandCancel, cli.CommandRestart:
		return r.forwardOrFail(ctx, string(parsed.Command))
	case cli.CommandRecord:
		return r.commandRecord(ctx, rt)
	case cli.CommandInterview:
		return r.commandInterview(ctx, rt, parsed)
	case cli.CommandReport:
		return r.commandReport(ctx, rt, parsed)
	case cli.CommandBook:
		return r.commandBook(ctx, rt, parsed)
	case cli.CommandBookings:
		return r.commandBookings(ctx, rt)
	case cli.CommandUnbook:
		return r.commandUnbook(ctx, rt, parsed.Args[0])
	case cli.CommandAnalyzeResume:
		return r.commandAnalyzeResume(ctx, rt, parsed)
	case cli.CommandAnalyses:
		return r.commandAnalyses(ctx, rt, parsed.Bool("json"))
	case cli.CommandLive:
		return r.commandLive(ctx, rt, parsed)
	case cli.CommandServe:
		return r.commandServe(ctx, rt, parsed.Flag("addr"))
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDoctor(ctx context.Context, rt runtime, loaded config.Loaded) int {
	probes := doctor.Probes{}
	if s, err := rt.openStore(); err == nil {
		defer s.Close()
		probes.Store = s
	}
	report := doctor.Run(ctx, loaded, probes)
	fmt.Fprintln(r.Stdout, report.String())
	if report.OK() {
		return 0
	}
	return 1
}

// fail prints a user-facing error and logs the cause.
func (r Runner) fail(logger *slog.Logger, what string, err error) int {
	fmt.Fprintf(r.Stderr, "error: %s\n", apperr.Message(err))
	logger.Error(what, "error", err.Error())
	return 1
}

// colorEnabled reports whether w is a terminal and NO_COLOR is unset.
func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
