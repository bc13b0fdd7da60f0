package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/version"
)

// ErrNoAnalysisRef is returned when there is no analysis reference to load.
var ErrNoAnalysisRef = apperr.Validation("No analysis report reference")

const maxAnalysisBytes = 8 << 20

// ResolveRef resolves a server-relative report reference against base.
// Absolute http(s) references are returned unchanged.
func ResolveRef(base string, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse report reference %q: %w", ref, err)
	}
	if parsedRef.IsAbs() {
		return parsedRef.String(), nil
	}
	parsedBase, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	return parsedBase.ResolveReference(parsedRef).String(), nil
}

// Fetch performs one GET of the analysis payload. There is no retry.
func Fetch(ctx context.Context, client *http.Client, base string, ref string) (Analysis, error) {
	target, err := ResolveRef(base, ref)
	if err != nil {
		return Analysis{}, apperr.Network("Failed to load analysis report", err)
	}
	if target == "" {
		return Analysis{}, ErrNoAnalysisRef
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Analysis{}, apperr.Network("Failed to load analysis report", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return Analysis{}, apperr.Network("Failed to load analysis report", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Analysis{}, apperr.Network(
			"Failed to load analysis report",
			fmt.Errorf("GET %s: status %d: %s", target, resp.StatusCode, strings.TrimSpace(string(body))),
		)
	}

	var analysis Analysis
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAnalysisBytes)).Decode(&analysis); err != nil {
		return Analysis{}, apperr.Network("Failed to load analysis report", fmt.Errorf("decode analysis: %w", err))
	}
	return analysis, nil
}
