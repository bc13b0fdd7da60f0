package resume

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

const maxSkillsShown = 15

// Render writes a plain-text view of one analysis.
func Render(w io.Writer, s Summary) error {
	var b strings.Builder

	if s.CandidateName != "" {
		fmt.Fprintln(&b, s.CandidateName)
	}
	if s.Role != "" || s.Experience != "" {
		fmt.Fprintf(&b, "%s  %s experience\n", s.Role, s.Experience)
	}
	if s.ATSScore != nil {
		fmt.Fprintf(&b, "ATS score: %g", *s.ATSScore)
		if s.ScoreLabel != "" {
			fmt.Fprintf(&b, " (%s)", s.ScoreLabel)
		}
		b.WriteString("\n")
	}
	match := 0.0
	if s.MatchPercentage != nil {
		match = *s.MatchPercentage
	}
	fmt.Fprintf(&b, "Skills match for this role: %g%%\n", match)

	section(&b, "Critical issues", "!", s.Recommendations.CriticalIssues)

	if len(s.DetailedScores) > 0 {
		b.WriteString("\nDetailed scores\n")
		categories := make([]string, 0, len(s.DetailedScores))
		for category := range s.DetailedScores {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			fmt.Fprintf(&b, "  %-24s %g\n", strings.ReplaceAll(category, "_", " "), s.DetailedScores[category])
		}
	}

	section(&b, "Strengths", "+", s.Recommendations.Strengths)
	section(&b, "Improvements", "->", s.Recommendations.Improvements)

	skills := s.Analysis.SkillsFound
	total := len(skills)
	if s.Analysis.TotalSkills != nil {
		total = *s.Analysis.TotalSkills
	}
	if len(skills) > 0 {
		fmt.Fprintf(&b, "\nSkills (%d found)\n  ", total)
		shown := skills
		if len(shown) > maxSkillsShown {
			shown = shown[:maxSkillsShown]
		}
		b.WriteString(strings.Join(shown, ", "))
		if extra := len(skills) - len(shown); extra > 0 {
			fmt.Fprintf(&b, " +%d more", extra)
		}
		b.WriteString("\n")
	}
	section(&b, "Missing required skills", "-", s.Analysis.MissingRequiredSkills)

	b.WriteString("\n")
	fmt.Fprintf(&b, "Words: %s  Sections: %s  Skills: %s\n",
		optionalInt(s.Analysis.WordCount),
		optionalCount(s.Analysis.SectionsFound),
		optionalInt(s.Analysis.TotalSkills),
	)

	section(&b, "Next steps", "*", s.NextSteps)

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderHistory writes one line per stored analysis, oldest first.
func RenderHistory(w io.Writer, records []Record) error {
	if len(records) == 0 {
		_, err := io.WriteString(w, "No resume analyses yet\n")
		return err
	}
	for _, record := range records {
		s, err := record.Summary()
		if err != nil {
			return err
		}
		score := "-"
		if s.ATSScore != nil {
			score = fmt.Sprintf("%g", *s.ATSScore)
		}
		if _, err := fmt.Fprintf(w, "%s  %s  %-20s %-20s ATS %s\n", record.ID(), s.Timestamp, s.CandidateName, s.Role, score); err != nil {
			return err
		}
	}
	return nil
}

func section(b *strings.Builder, title string, marker string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "  %s %s\n", marker, item)
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func optionalCount(items []string) string {
	if items == nil {
		return "-"
	}
	return fmt.Sprintf("%d", len(items))
}
