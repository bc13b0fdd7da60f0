package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/rbright/rehearse/internal/booking"
	"github.com/rbright/rehearse/internal/cli"
	"github.com/rbright/rehearse/internal/conference"
	"github.com/rbright/rehearse/internal/httpapi"
	"github.com/rbright/rehearse/internal/report"
	"github.com/rbright/rehearse/internal/resume"
	"github.com/rbright/rehearse/internal/store"
)

func (rt runtime) bookingService(s store.Store) *booking.Service {
	liveURL := rt.cfg.Live.URL
	return booking.NewService(s, booking.Options{
		Validator: rt.validator,
		Logger:    rt.logger,
		JoinURL:   func(room string) string { return conference.RoomLink(liveURL, room) },
	})
}

func (rt runtime) resumeService(s store.Store) *resume.Service {
	return resume.NewService(s, resume.Options{
		BaseURL:    rt.cfg.Services.ResumeURL,
		HTTPClient: rt.http,
		Validator:  rt.validator,
		Logger:     rt.logger,
	})
}

func (r Runner) commandBook(ctx context.Context, rt runtime, parsed cli.Parsed) int {
	s, err := rt.openStore()
	if err != nil {
		return r.fail(rt.logger, "open store failed", err)
	}
	defer s.Close()

	b, err := rt.bookingService(s).Create(ctx, booking.Request{
		CandidateName: parsed.Flag("name"),
		Position:      parsed.Flag("position"),
		Date:          parsed.Flag("date"),
		Time:          parsed.Flag("time"),
		Duration:      parsed.Flag("duration"),
		Notes:         parsed.Flag("notes"),
	})
	if err != nil {
		return r.fail(rt.logger, "create booking failed", err)
	}

	fmt.Fprintln(r.Stdout, "Interview scheduled successfully!")
	fmt.Fprintf(r.Stdout, "  id:       %s\n", b.ID)
	fmt.Fprintf(r.Stdout, "  when:     %s %s (%s min)\n", b.Date, b.Time, b.Duration)
	fmt.Fprintf(r.Stdout, "  room:     %s\n", b.RoomName)
	if b.JoinURL != "" {
		fmt.Fprintf(r.Stdout, "  join:     %s\n", b.JoinURL)
	}
	fmt.Fprintf(r.Stdout, "  start it: rehearse live --booking %s --role interviewer\n", b.ID)
	return 0
}

func (r Runner) commandBookings(ctx context.Context, rt runtime) int {
	s, err := rt.openStore()
	if err != nil {
		return r.fail(rt.logger, "open store failed", err)
	}
	defer s.Close()

	bookings, err := rt.bookingService(s).List(ctx)
	if err != nil {
		return r.fail(rt.logger, "list bookings failed", err)
	}
	if len(bookings) == 0 {
		fmt.Fprintln(r.Stdout, "No interviews scheduled")
		return 0
	}

	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tCANDIDATE\tPOSITION\tMIN\tROOM")
	for _, b := range bookings {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t%s\t%s\n", b.ID, b.Date, b.Time, b.CandidateName, dash(b.Position), b.Duration, b.RoomName)
	}
	if err := tw.Flush(); err != nil {
		return r.fail(rt.logger, "print bookings failed", err)
	}
	return 0
}

func (r Runner) commandUnbook(ctx context.Context, rt runtime, id string) int {
	s, err := rt.openStore()
	if err != nil {
		return r.fail(rt.logger, "open store failed", err)
	}
	defer s.Close()

	if err := rt.bookingService(s).Delete(ctx, id); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			fmt.Fprintf(r.Stderr, "error: no booking with id %q\n", id)
			return 1
		}
		return r.fail(rt.logger, "delete booking failed", err)
	}
	fmt.Fprintf(r.Stdout, "deleted %s\n", id)
	return 0
}

func (r Runner) commandAnalyzeResume(ctx context.Context, rt runtime, parsed cli.Parsed) int {
	s, err := rt.openStore()
	if err != nil {
		return r.fail(rt.logger, "open store failed", err)
	}
	defer s.Close()

	fmt.Fprintln(r.Stderr, "Analyzing resume...")
	record, err := rt.resumeService(s).Analyze(ctx, resume.Request{
		FilePath:   parsed.Flag("file"),
		Name:       parsed.Flag("name"),
		Role:       parsed.Flag("role"),
		Experience: parsed.Flag("experience"),
	})
	if err != nil {
		return r.fail(rt.logger, "resume analysis failed", err)
	}
	summary, err := record.Summary()
	if err != nil {
		return r.fail(rt.logger, "decode resume analysis failed", err)
	}
	if err := resume.Render(r.Stdout, summary); err != nil {
		return r.fail(rt.logger, "render resume analysis failed", err)
	}
	return 0
}

func (r Runner) commandAnalyses(ctx context.Context, rt runtime, asJSON bool) int {
	s, err := rt.openStore()
	if err != nil {
		return r.fail(rt.logger, "open store failed", err)
	}
	defer s.Close()

	records, err := rt.resumeService(s).History(ctx)
	if err != nil {
		return r.fail(rt.logger, "load resume history failed", err)
	}
	if asJSON {
		enc := json.NewEncoder(r.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return r.fail(rt.logger, "encode resume history failed", err)
		}
		return 0
	}
	if err := resume.RenderHistory(r.Stdout, records); err != nil {
		return r.fail(rt.logger, "render resume history failed", err)
	}
	return 0
}

func (r Runner) commandLive(ctx context.Context, rt runtime, parsed cli.Parsed) int {
	role, err := conference.ParseRole(parsed.Flag("role"))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	room := parsed.Flag("room")
	if id := parsed.Flag("booking"); id != "" {
		s, err := rt.openStore()
		if err != nil {
			return r.fail(rt.logger, "open store failed", err)
		}
		b, err := rt.bookingService(s).Get(ctx, id)
		_ = s.Close()
		if err != nil {
			if errors.Is(err, booking.ErrNotFound) {
				fmt.Fprintf(r.Stderr, "error: no booking with id %q\n", id)
				return 1
			}
			return r.fail(rt.logger, "load booking failed", err)
		}
		room = b.RoomName
	}

	svc := conference.New(conference.Config{
		URL:       rt.cfg.Live.URL,
		APIKey:    rt.cfg.Secrets.LiveKitAPIKey,
		APISecret: rt.cfg.Secrets.LiveKitAPISecret,
		TokenTTL:  time.Duration(rt.cfg.Live.TokenTTLMinutes) * time.Minute,
		Mock:      rt.cfg.Live.Mock,
		Logger:    rt.logger,
	})
	participant, err := svc.Join(ctx, room, role)
	if err != nil {
		return r.fail(rt.logger, "join live room failed", err)
	}

	if parsed.Bool("json") {
		text, err := conference.RoomJSON(participant.Room)
		if err != nil {
			return r.fail(rt.logger, "encode room failed", err)
		}
		fmt.Fprintln(r.Stdout, text)
	} else {
		fmt.Fprintf(r.Stdout, "Joined %s as %s\n", participant.Room.GetName(), participant.DisplayName)
		fmt.Fprintf(r.Stdout, "  open:   %s\n", participant.MeetURL())
		fmt.Fprintf(r.Stdout, "  server: %s\n", participant.ServerURL)
		fmt.Fprintf(r.Stdout, "  token:  %s\n", participant.Token)
		if role == conference.RoleInterviewer {
			fmt.Fprintf(r.Stdout, "Share with your candidate: rehearse live --room %q --role candidate\n", participant.Room.GetName())
		}
	}
	fmt.Fprintln(r.Stderr, "Press Ctrl+C to leave the room.")

	if err := svc.Hold(ctx, participant); err != nil {
		rt.logger.Warn("leave live room failed", "room", participant.Room.GetName(), "error", err.Error())
	}
	return 0
}

func (r Runner) commandServe(ctx context.Context, rt runtime, addr string) int {
	s, err := rt.openStore()
	if err != nil {
		return r.fail(rt.logger, "open store failed", err)
	}
	defer s.Close()

	if addr == "" {
		addr = rt.cfg.Serve.Addr
	}
	server := httpapi.New(httpapi.Config{
		Addr:           addr,
		AllowedOrigins: rt.cfg.Serve.AllowedOrigins,
		Bookings:       rt.bookingService(s),
		Resumes:        rt.resumeService(s),
		Store:          s,
		Validator:      rt.validator,
		Logger:         rt.logger,
	})
	fmt.Fprintf(r.Stderr, "Serving on http://%s (Ctrl+C to stop)\n", addr)
	if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return r.fail(rt.logger, "api server failed", err)
	}
	return 0
}

func (r Runner) commandReport(ctx context.Context, rt runtime, parsed cli.Parsed) int {
	ref := parsed.Flag("analysis")
	analysis, err := report.Fetch(ctx, rt.http, rt.cfg.Services.AnalysisURL, ref)
	if err != nil {
		return r.fail(rt.logger, "fetch analysis failed", err)
	}
	videoURL := parsed.Flag("video")
	if videoURL != "" {
		if resolved, err := report.ResolveRef(rt.cfg.Services.AnalysisURL, videoURL); err == nil {
			videoURL = resolved
		}
	}
	opts := report.Options{Color: colorEnabled(r.Stdout) && !parsed.Bool("no-color")}
	if err := report.RenderAnalysis(r.Stdout, analysis, videoURL, opts); err != nil {
		return r.fail(rt.logger, "render analysis failed", err)
	}
	return 0
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
