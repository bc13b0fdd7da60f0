package speech

import "strings"

// cleanSegment normalizes transcript whitespace.
func cleanSegment(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// joinAnswer appends one final segment to the typed/transcribed answer.
func joinAnswer(answer string, segment string) string {
	segment = cleanSegment(segment)
	if segment == "" {
		return answer
	}
	if answer == "" || strings.HasSuffix(answer, " ") || strings.HasSuffix(answer, "\n") {
		return answer + segment
	}
	return answer + " " + segment
}
