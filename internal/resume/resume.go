// Package resume uploads a resume for ATS-style analysis and keeps a local
// history of the results.
package resume

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/store"
	"github.com/rbright/rehearse/internal/validation"
	"github.com/rbright/rehearse/internal/version"
)

// StoreKey is the document holding the analysis history.
const StoreKey = "resume_analyses"

// MaxFileBytes is the largest resume accepted for upload.
const MaxFileBytes = 10 << 20

const analyzePath = "/upload-and-analyze"

// Request describes one resume analysis.
type Request struct {
	FilePath   string `json:"file" validate:"required,ext=.pdf .docx"`
	Name       string `json:"name" validate:"required"`
	Role       string `json:"role" validate:"required"`
	Experience string `json:"experience" validate:"required"`
}

var requestMessages = map[string]string{
	"file.required":       "Please select a resume file",
	"file.ext":            "Please upload a PDF or DOCX file",
	"name.required":       "Please fill all fields",
	"role.required":       "Please fill all fields",
	"experience.required": "Please fill all fields",
}

// Record is one stored analysis: the service's JSON object with id and
// timestamp keys added.
type Record map[string]json.RawMessage

// ID returns the record id, or "" when absent.
func (r Record) ID() string {
	var id string
	if raw, ok := r["id"]; ok {
		if err := json.Unmarshal(raw, &id); err != nil {
			var n json.Number
			if json.Unmarshal(raw, &n) == nil {
				return n.String()
			}
		}
	}
	return id
}

// Summary decodes the fields rehearse renders.
func (r Record) Summary() (Summary, error) {
	raw, err := json.Marshal(map[string]json.RawMessage(r))
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return Summary{}, fmt.Errorf("decode resume analysis: %w", err)
	}
	return s, nil
}

// Summary is the rendered subset of an analysis. All fields are optional.
type Summary struct {
	CandidateName   string             `json:"candidate_name"`
	Role            string             `json:"role"`
	Experience      string             `json:"experience"`
	ATSScore        *float64           `json:"ats_score"`
	ScoreLabel      string             `json:"score_label"`
	MatchPercentage *float64           `json:"match_percentage"`
	DetailedScores  map[string]float64 `json:"detailed_scores"`
	Recommendations struct {
		CriticalIssues []string `json:"critical_issues"`
		Strengths      []string `json:"strengths"`
		Improvements   []string `json:"improvements"`
	} `json:"recommendations"`
	Analysis struct {
		SkillsFound           []string `json:"skills_found"`
		MissingRequiredSkills []string `json:"missing_required_skills"`
		WordCount             *int     `json:"word_count"`
		TotalSkills           *int     `json:"total_skills"`
		SectionsFound         []string `json:"sections_found"`
	} `json:"analysis"`
	NextSteps []string `json:"next_steps"`
	Timestamp string   `json:"timestamp"`
}

// Options wires a Service.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Validator  *validation.Validator
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service uploads resumes and records each result.
type Service struct {
	base      string
	http      *http.Client
	store     store.Store
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

func NewService(s store.Store, opts Options) *Service {
	svc := &Service{
		base:      strings.TrimSpace(opts.BaseURL),
		http:      opts.HTTPClient,
		store:     s,
		validator: opts.Validator,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if svc.http == nil {
		svc.http = http.DefaultClient
	}
	if svc.validator == nil {
		svc.validator = validation.New()
	}
	if svc.logger == nil {
		svc.logger = logging.Discard()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// Analyze uploads the resume, stores the result, and returns the stored record.
func (s *Service) Analyze(ctx context.Context, req Request) (Record, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.TrimSpace(req.Role)
	req.Experience = strings.TrimSpace(req.Experience)
	if err := s.validator.Check(req, requestMessages); err != nil {
		return nil, err
	}
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, apperr.Validation("Please select a resume file").WithDetail("file", req.FilePath)
	}
	if info.Size() > MaxFileBytes {
		return nil, apperr.Validation("File size must be less than 10MB")
	}

	body, contentType, err := s.form(req)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("Could not read upload: %v", err))
	}

	target, err := url.JoinPath(s.base, analyzePath)
	if err != nil {
		return nil, apperr.Network("Analysis failed", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, apperr.Network("Analysis failed", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	started := s.now()
	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, apperr.Network("Something went wrong. Please try again.", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperr.Network("Analysis failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Network(detailMessage(raw), fmt.Errorf("POST %s: status %d", analyzePath, resp.StatusCode))
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, apperr.Network("Analysis failed", fmt.Errorf("decode analysis: %w", err))
	}

	now := s.now().UTC()
	record["id"] = mustJSON(uuid.NewString())
	record["timestamp"] = mustJSON(now.Format(time.RFC3339Nano))

	if err := s.appendRecord(ctx, record); err != nil {
		s.logger.Error("resume analysis not saved", "error", err)
	}
	s.logger.Info("resume analyzed",
		"id", record.ID(),
		"role", req.Role,
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	return record, nil
}

// History returns stored analyses, oldest first.
func (s *Service) History(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Service) appendRecord(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, StoreKey, append(records, record))
}

func (s *Service) load(ctx context.Context) ([]Record, error) {
	var records []Record
	err := s.store.Load(ctx, StoreKey, &records)
	if errors.Is(err, store.ErrNotFound) {
		return []Record{}, nil
	}
	return records, err
}

func (s *Service) form(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	f, err := os.Open(req.FilePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	part, err := form.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}

	for _, field := range []struct{ name, value string }{
		{"userId", "user_" + strconv.FormatInt(s.now().UnixMilli(), 10)},
		{"name", req.Name},
		{"role", req.Role},
		{"experience", req.Experience},
	} {
		if err := form.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

// detailMessage extracts a FastAPI-style {"detail": "..."} error message.
func detailMessage(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Detail) > 0 {
		var text string
		if json.Unmarshal(body.Detail, &text) == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return "Analysis failed"
}

func mustJSON(v string) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
