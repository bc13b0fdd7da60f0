// Package report reads remote analysis and feedback payloads and renders them
// as plain text. It holds no mutable state.
package report

import (
	"math"
	"sort"
	"strings"
)

// Analysis is the video-analysis payload owned by the remote analysis
// service. Every field is optional.
type Analysis struct {
	Gaze           *Gaze              `json:"gaze,omitempty"`
	Fluency        *Fluency           `json:"fluency,omitempty"`
	Emotions       map[string]float64 `json:"emotions,omitempty"`
	EmotionSummary *EmotionSummary    `json:"emotion_summary,omitempty"`
	Scores         *Scores            `json:"scores,omitempty"`
}

type Gaze struct {
	Percentage *float64 `json:"percentage,omitempty"`
}

type Fluency struct {
	FillerCount       *int     `json:"filler_count,omitempty"`
	Transcript        *string  `json:"transcript,omitempty"`
	WordCount         *int     `json:"word_count,omitempty"`
	SpeakingRateWPM   *float64 `json:"speaking_rate_wpm,omitempty"`
	FillerPer100Words *float64 `json:"filler_per_100_words,omitempty"`
}

type EmotionSummary struct {
	DominantEmotion string   `json:"dominant_emotion,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

type Scores struct {
	OverallScore    *float64 `json:"overall_score,omitempty"`
	EyeContactScore *float64 `json:"eye_contact_score,omitempty"`
	FluencyScore    *float64 `json:"fluency_score,omitempty"`
}

// EmotionCount is one histogram bucket.
type EmotionCount struct {
	Emotion string
	Frames  float64
}

const noTranscript = "No transcript available"

// GazePercentage is the share of frames with eye contact, 0 when absent.
func (a Analysis) GazePercentage() float64 {
	if a.Gaze == nil || a.Gaze.Percentage == nil {
		return 0
	}
	return *a.Gaze.Percentage
}

// FillerCount is the number of detected filler words, 0 when absent.
func (a Analysis) FillerCount() int {
	if a.Fluency == nil || a.Fluency.FillerCount == nil {
		return 0
	}
	return *a.Fluency.FillerCount
}

// Transcript returns the speech transcript or a placeholder.
func (a Analysis) Transcript() string {
	if a.Fluency == nil || a.Fluency.Transcript == nil || strings.TrimSpace(*a.Fluency.Transcript) == "" {
		return noTranscript
	}
	return *a.Fluency.Transcript
}

// WordCount returns the transcript word count when reported.
func (a Analysis) WordCount() (int, bool) {
	if a.Fluency == nil || a.Fluency.WordCount == nil || *a.Fluency.WordCount == 0 {
		return 0, false
	}
	return *a.Fluency.WordCount, true
}

// OverallScore prefers the service score and otherwise blends eye contact
// (60 points) with filler-word fluency (40 points).
func (a Analysis) OverallScore() int {
	if a.Scores != nil && a.Scores.OverallScore != nil {
		return int(math.Round(*a.Scores.OverallScore))
	}
	fillerPenalty := math.Min(float64(a.FillerCount())/10, 1)
	return int(math.Round(a.GazePercentage()*0.6 + (1-fillerPenalty)*40))
}

// Histogram returns emotions by descending frame count, ties alphabetical.
func (a Analysis) Histogram() []EmotionCount {
	out := make([]EmotionCount, 0, len(a.Emotions))
	for emotion, frames := range a.Emotions {
		out = append(out, EmotionCount{Emotion: emotion, Frames: frames})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frames != out[j].Frames {
			return out[i].Frames > out[j].Frames
		}
		return out[i].Emotion < out[j].Emotion
	})
	return out
}

// DominantEmotion uses the service summary, then the histogram peak, then "neutral".
func (a Analysis) DominantEmotion() string {
	if a.EmotionSummary != nil && strings.TrimSpace(a.EmotionSummary.DominantEmotion) != "" {
		return strings.TrimSpace(a.EmotionSummary.DominantEmotion)
	}
	if histogram := a.Histogram(); len(histogram) > 0 {
		return histogram[0].Emotion
	}
	return "neutral"
}

// Band is the colour band of a 0-100 score.
type Band string

const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
)

func ScoreBand(score int) Band {
	switch {
	case score >= 75:
		return BandGreen
	case score >= 50:
		return BandYellow
	default:
		return BandRed
	}
}

func ScoreMessage(score int) string {
	switch {
	case score >= 80:
		return "Excellent! You showed great confidence and clarity."
	case score >= 60:
		return "Good job! A few areas to improve."
	case score >= 40:
		return "Fair performance. Practice will help."
	default:
		return "Keep practicing! You'll improve with time."
	}
}

func eyeContactNote(percentage float64) string {
	switch {
	case percentage >= 75:
		return "Excellent eye contact!"
	case percentage >= 50:
		return "Good, but try to look at camera more"
	default:
		return "Practice maintaining eye contact"
	}
}

func fillerNote(count int) string {
	switch {
	case count <= 3:
		return "Great fluency!"
	case count <= 6:
		return "Moderate use of fillers"
	default:
		return "Try to reduce filler words"
	}
}

// Recommendation is a titled piece of advice derived from the analysis.
type Recommendation struct {
	Title string
	Body  string
}

// Recommendations derives advice from gaze, filler and overall thresholds.
// The closing "Keep Practicing" entry is always present.
func (a Analysis) Recommendations() []Recommendation {
	out := make([]Recommendation, 0, 4)
	if a.GazePercentage() < 70 {
		out = append(out, Recommendation{
			Title: "Improve Eye Contact",
			Body:  "Look directly at the camera, not at your screen. This simulates eye contact with the interviewer.",
		})
	}
	if a.FillerCount() > 5 {
		out = append(out, Recommendation{
			Title: "Reduce Filler Words",
			Body:  `It's okay to pause and think rather than using "um", "uh", or "like". Practice speaking slowly.`,
		})
	}
	if a.OverallScore() >= 75 {
		out = append(out, Recommendation{
			Title: "Great Performance!",
			Body:  "You're doing well! Continue practicing to maintain this level of confidence.",
		})
	}
	out = append(out, Recommendation{
		Title: "Keep Practicing",
		Body:  "Regular practice will help you become more comfortable and confident in interviews.",
	})
	return out
}
