// Package interview talks to the remote conversational interview service and
// keeps the client-side view of one interview session.
package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/report"
	"github.com/rbright/rehearse/internal/validation"
	"github.com/rbright/rehearse/internal/version"
)

const (
	SessionHeader = "X-Session-Id"
	SessionCookie = "SESSION"

	startPath = "/api/interview/start"
	turnPath  = "/api/interview/turn"
	endPath   = "/api/interview/end"

	maxReplyBytes = 1 << 20
)

// StartRequest describes the candidate material sent to open an interview.
// Empty DifficultyLevel/InterviewType are omitted and the service applies
// its defaults (Medium, Technical).
type StartRequest struct {
	ResumePath         string `json:"resume" validate:"required,ext=.pdf"`
	JobDescriptionPath string `json:"jobDescription" validate:"omitempty"`
	DifficultyLevel    string `json:"difficultyLevel" validate:"omitempty,oneof=Easy Medium Hard"`
	InterviewType      string `json:"interviewType" validate:"omitempty,oneof=Technical Behavioral HR Mixed"`
}

var startMessages = map[string]string{
	"resume.required": "Please upload your resume",
	"resume.ext":      "Resume must be a PDF file",
}

// Opening is the service's reply to a successful start.
type Opening struct {
	SessionID string
	Message   string
}

// ClientConfig wires a Client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	AuthToken  string
	HTTPClient *http.Client
	Validator  *validation.Validator
	Logger     *slog.Logger
}

// Client performs single-shot calls against the interview service. It never
// retries.
type Client struct {
	base      *url.URL
	http      *http.Client
	authToken string
	validator *validation.Validator
	logger    *slog.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid interview service url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	v := cfg.Validator
	if v == nil {
		v = validation.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		base:      base,
		http:      httpClient,
		authToken: strings.TrimSpace(cfg.AuthToken),
		validator: v,
		logger:    logger,
	}, nil
}

// Start uploads the resume (and optional job description) and returns the
// issued session id with the interviewer's opening message.
func (c *Client) Start(ctx context.Context, req StartRequest) (Opening, error) {
	if err := c.validator.Check(req, startMessages); err != nil {
		return Opening{}, err
	}

	body, contentType, err := startForm(req)
	if err != nil {
		return Opening{}, apperr.Validation(fmt.Sprintf("Could not read upload: %v", err))
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, startPath, body)
	if err != nil {
		return Opening{}, apperr.Network("Failed to start interview", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Opening{}, apperr.Network("Failed to start interview", err)
	}
	defer resp.Body.Close()

	text, err := readText(resp)
	if err != nil {
		return Opening{}, apperr.Network("Failed to start interview", err)
	}

	sessionID := strings.TrimSpace(resp.Header.Get(SessionHeader))
	if sessionID == "" {
		return Opening{}, apperr.Network("Session ID not found in response headers", nil)
	}

	c.logger.Info("interview started",
		"session_id", sessionID,
		"difficulty", req.DifficultyLevel,
		"type", req.InterviewType,
		"has_job_description", req.JobDescriptionPath != "",
	)
	return Opening{SessionID: sessionID, Message: text}, nil
}

// Turn sends one candidate answer and returns the interviewer's reply.
func (c *Client) Turn(ctx context.Context, sessionID string, answer string) (string, error) {
	payload, err := json.Marshal(struct {
		Answer string `json:"answer"`
	}{Answer: answer})
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, turnPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	attachSession(req, sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return readText(resp)
}

// End closes the interview and returns the structured feedback.
func (c *Client) End(ctx context.Context, sessionID string) (report.Feedback, error) {
	req, err := c.newRequest(ctx, http.MethodGet, endPath, nil)
	if err != nil {
		return report.Feedback{}, err
	}
	req.Header.Set("Accept", "application/json")
	attachSession(req, sessionID)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return report.Feedback{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return report.Feedback{}, err
	}

	var feedback report.Feedback
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&feedback); err != nil {
		return report.Feedback{}, fmt.Errorf("decode feedback: %w", err)
	}
	return feedback, nil
}

func (c *Client) newRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	target := c.base.ResolveReference(&url.URL{Path: strings.TrimSuffix(c.base.Path, "/") + path})
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

func attachSession(req *http.Request, sessionID string) {
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sessionID})
	req.Header.Set(SessionHeader, sessionID)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: status %d: %s",
		resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
}

func readText(resp *http.Response) (string, error) {
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func startForm(req StartRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := attachFile(form, "resume", req.ResumePath); err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(req.JobDescriptionPath) != "" {
		if err := attachFile(form, "jobDescription", req.JobDescriptionPath); err != nil {
			return nil, "", err
		}
	}
	for _, field := range []struct{ name, value string }{
		{"difficultyLevel", req.DifficultyLevel},
		{"interviewType", req.InterviewType},
	} {
		if field.value == "" {
			continue
		}
		if err := form.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}

	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

func attachFile(form *multipart.Writer, field string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := form.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
