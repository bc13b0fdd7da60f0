package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/rbright/rehearse/internal/report"
	"github.com/rbright/rehearse/internal/version"
)

const uploadPath = "/upload-video"

// Payload is the packaged recording, built exactly once per take.
type Payload struct {
	Data     []byte
	MIMEType string
	Filename string
}

// UploadResponse is the analysis service's reply to an upload.
type UploadResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	AnalysisURL string `json:"analysis_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Refs locate the uploaded video and its analysis report.
type Refs struct {
	VideoURL    string `json:"video_url"`
	AnalysisURL string `json:"analysis_url"`
}

// Uploader sends a payload for remote analysis. A returned error means the
// request itself failed; a non-success reply is reported in the response.
type Uploader interface {
	Upload(ctx context.Context, payload Payload) (UploadResponse, error)
}

// HTTPUploader posts the payload as multipart field "video".
type HTTPUploader struct {
	BaseURL string
	HTTP    *http.Client
}

func (u HTTPUploader) Upload(ctx context.Context, payload Payload) (UploadResponse, error) {
	base, err := url.Parse(strings.TrimSpace(u.BaseURL))
	if err != nil {
		return UploadResponse{}, fmt.Errorf("parse analysis url: %w", err)
	}
	target := base.ResolveReference(&url.URL{Path: strings.TrimSuffix(base.Path, "/") + uploadPath})

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, payload.Filename))
	header.Set("Content-Type", payload.MIMEType)
	part, err := form.CreatePart(header)
	if err != nil {
		return UploadResponse{}, err
	}
	if _, err := part.Write(payload.Data); err != nil {
		return UploadResponse{}, err
	}
	if err := form.Close(); err != nil {
		return UploadResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), &body)
	if err != nil {
		return UploadResponse{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("User-Agent", version.UserAgent())

	client := u.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return UploadResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return UploadResponse{}, fmt.Errorf("upload video: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded UploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return UploadResponse{}, fmt.Errorf("decode upload response: %w", err)
	}

	decoded.VideoURL, err = report.ResolveRef(u.BaseURL, decoded.VideoURL)
	if err != nil {
		return UploadResponse{}, err
	}
	decoded.AnalysisURL, err = report.ResolveRef(u.BaseURL, decoded.AnalysisURL)
	if err != nil {
		return UploadResponse{}, err
	}
	return decoded, nil
}

// failureReason mirrors the service's error text, falling back to a generic message.
func (r UploadResponse) failureReason() string {
	if msg := strings.TrimSpace(r.Error); msg != "" {
		return msg
	}
	return "Analysis failed"
}
