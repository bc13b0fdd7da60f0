package report

// Feedback is the end-of-interview evaluation returned by the interview service.
type Feedback struct {
	OverallPerformance  *OverallPerformance `json:"overallPerformance,omitempty"`
	Strengths           []string            `json:"strengths,omitempty"`
	Weaknesses          []string            `json:"weaknesses,omitempty"`
	Communication       *Communication      `json:"communication,omitempty"`
	AreasForImprovement []string            `json:"areasForImprovement,omitempty"`
	Recommendations     []string            `json:"recommendations,omitempty"`
	EvaluationMetrics   *EvaluationMetrics  `json:"evaluationMetrics,omitempty"`
	InterviewerNotes    []InterviewerNote   `json:"interviewerNotes,omitempty"`
	FinalVerdict        *FinalVerdict       `json:"finalVerdict,omitempty"`
}

type OverallPerformance struct {
	Rating  *float64 `json:"rating,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

type Communication struct {
	Clarity     string `json:"clarity,omitempty"`
	Structure   string `json:"structure,omitempty"`
	Conciseness string `json:"conciseness,omitempty"`
	ImpactFocus string `json:"impactFocus,omitempty"`
}

// EvaluationMetrics scores are 0-10; OverallReadiness is a 0-1 fraction.
type EvaluationMetrics struct {
	TechnicalKnowledge *int     `json:"technicalKnowledge,omitempty"`
	ProblemSolving     *int     `json:"problemSolving,omitempty"`
	Communication      *int     `json:"communication,omitempty"`
	ProjectExperience  *int     `json:"projectExperience,omitempty"`
	OverallReadiness   *float64 `json:"overallReadiness,omitempty"`
}

type InterviewerNote struct {
	Section string `json:"section,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type FinalVerdict struct {
	Status  string `json:"status,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Band maps PASS to green, FAIL to red and anything else to yellow.
func (v FinalVerdict) Band() Band {
	switch v.Status {
	case "PASS":
		return BandGreen
	case "FAIL":
		return BandRed
	default:
		return BandYellow
	}
}

// Empty reports whether no section of the feedback is present.
func (f Feedback) Empty() bool {
	return f.OverallPerformance == nil &&
		len(f.Strengths) == 0 &&
		len(f.Weaknesses) == 0 &&
		f.Communication == nil &&
		len(f.AreasForImprovement) == 0 &&
		len(f.Recommendations) == 0 &&
		f.EvaluationMetrics == nil &&
		len(f.InterviewerNotes) == 0 &&
		f.FinalVerdict == nil
}
