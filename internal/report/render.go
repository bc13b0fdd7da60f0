package report

import (
	"fmt"
	"io"
	"strings"
)

const feedbackFooter = "Thank you for participating in the interview. Good luck with your next steps!"

// Options control optional decoration of rendered reports.
type Options struct {
	// Color wraps banded values in ANSI colour escapes.
	Color bool
}

var bandEscape = map[Band]string{
	BandGreen:  "\x1b[32m",
	BandYellow: "\x1b[33m",
	BandRed:    "\x1b[31m",
}

func (o Options) paint(band Band, text string) string {
	if !o.Color {
		return text
	}
	return bandEscape[band] + text + "\x1b[0m"
}

// RenderAnalysis writes the video-interview report. videoURL may be empty.
func RenderAnalysis(w io.Writer, analysis Analysis, videoURL string, opts Options) error {
	p := &printer{w: w}
	score := analysis.OverallScore()

	p.line("Interview Analysis Complete!")
	p.line("Here's your detailed performance report")
	p.blank()
	p.linef("Overall Performance Score: %s", opts.paint(ScoreBand(score), fmt.Sprintf("%d", score)))
	p.line(ScoreMessage(score))
	p.blank()

	p.heading("Your Interview Recording")
	if strings.TrimSpace(videoURL) == "" {
		p.line("No video recording was found.")
	} else {
		p.line(videoURL)
	}
	p.blank()

	gaze := analysis.GazePercentage()
	fillers := analysis.FillerCount()
	p.linef("Eye Contact:      %.1f%%  %s", gaze, eyeContactNote(gaze))
	p.linef("Filler Words:     %d  %s", fillers, fillerNote(fillers))
	p.linef("Dominant Emotion: %s", analysis.DominantEmotion())
	histogram := analysis.Histogram()
	if len(histogram) > 3 {
		histogram = histogram[:3]
	}
	for _, bucket := range histogram {
		p.linef("  %-12s %g frames", bucket.Emotion, bucket.Frames)
	}
	if analysis.Fluency != nil && analysis.Fluency.SpeakingRateWPM != nil {
		p.linef("Speaking Rate:    %.0f wpm", *analysis.Fluency.SpeakingRateWPM)
	}
	p.blank()

	p.heading("Speech Transcript")
	p.line(analysis.Transcript())
	if words, ok := analysis.WordCount(); ok {
		p.linef("Total words: %d", words)
	}
	p.blank()

	p.heading("Recommendations")
	for _, rec := range analysis.Recommendations() {
		p.linef("- %s: %s", rec.Title, rec.Body)
	}
	return p.err
}

// RenderFeedback writes the end-of-interview summary, skipping absent sections.
func RenderFeedback(w io.Writer, feedback *Feedback, opts Options) error {
	p := &printer{w: w}
	if feedback == nil || feedback.Empty() {
		p.line("No feedback available")
		return p.err
	}

	p.line("Interview Summary")
	p.line("Your comprehensive interview feedback and evaluation")
	p.blank()

	if perf := feedback.OverallPerformance; perf != nil {
		p.heading("Overall Performance")
		if perf.Rating != nil {
			p.linef("Rating: %g/10", *perf.Rating)
		}
		p.line(perf.Summary)
		p.blank()
	}

	if verdict := feedback.FinalVerdict; verdict != nil {
		p.linef("Final Verdict: %s", opts.paint(verdict.Band(), verdict.Status))
		p.line(verdict.Summary)
		p.blank()
	}

	if metrics := feedback.EvaluationMetrics; metrics != nil {
		p.heading("Evaluation Metrics")
		for _, metric := range []struct {
			label string
			value *int
		}{
			{"Technical Knowledge", metrics.TechnicalKnowledge},
			{"Problem Solving", metrics.ProblemSolving},
			{"Communication", metrics.Communication},
			{"Project Experience", metrics.ProjectExperience},
		} {
			if metric.value == nil {
				continue
			}
			p.linef("%-20s %s %d/10", metric.label, bar(float64(*metric.value)/10), *metric.value)
		}
		if metrics.OverallReadiness != nil && *metrics.OverallReadiness != 0 {
			readiness := *metrics.OverallReadiness
			p.linef("%-20s %s %.1f%%", "Overall Readiness", bar(readiness), readiness*100)
		}
		p.blank()
	}

	p.list("Strengths", "+", feedback.Strengths)
	p.list("Areas of Concern", "!", feedback.Weaknesses)

	if comm := feedback.Communication; comm != nil {
		p.heading("Communication Assessment")
		for _, item := range []struct{ label, value string }{
			{"Clarity", comm.Clarity},
			{"Structure", comm.Structure},
			{"Conciseness", comm.Conciseness},
			{"Impact Focus", comm.ImpactFocus},
		} {
			p.linef("%s: %s", item.label, item.value)
		}
		p.blank()
	}

	p.list("Areas for Improvement", "->", feedback.AreasForImprovement)
	p.list("Recommendations", "*", feedback.Recommendations)

	if len(feedback.InterviewerNotes) > 0 {
		p.heading("Interviewer Notes")
		for _, note := range feedback.InterviewerNotes {
			p.linef("[%s] %s", note.Section, note.Comment)
		}
		p.blank()
	}

	p.line(feedbackFooter)
	return p.err
}

const barWidth = 20

// bar draws a fixed-width gauge for a 0-1 fraction, clamped.
func bar(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction*barWidth + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}

// printer remembers the first write error so renderers stay linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) linef(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

func (p *printer) line(text string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, text+"\n")
}

func (p *printer) blank() {
	p.line("")
}

func (p *printer) heading(title string) {
	p.line(title)
	p.line(strings.Repeat("-", len(title)))
}

func (p *printer) list(title string, marker string, items []string) {
	if len(items) == 0 {
		return
	}
	p.heading(title)
	for _, item := range items {
		p.linef("%s %s", marker, item)
	}
	p.blank()
}
