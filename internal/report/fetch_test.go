package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/rehearse/internal/apperr"
)

func TestResolveRef(t *testing.T) {
	got, err := ResolveRef("http://localhost:5000", "/analysis/abc.json")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000/analysis/abc.json", got)

	got, err = ResolveRef("http://localhost:5000", "https://cdn.example.com/a.json")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/a.json", got)

	got, err = ResolveRef("http://localhost:5000", "  ")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFetchDecodesAnalysis(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analysis/1.json", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"gaze":{"percentage":80},"fluency":{"filler_count":2}}`))
	}))
	defer server.Close()

	analysis, err := Fetch(context.Background(), server.Client(), server.URL, "/analysis/1.json")
	require.NoError(t, err)
	require.Equal(t, 80.0, analysis.GazePercentage())
	require.Equal(t, 2, analysis.FillerCount())
}

func TestFetchNon2xxIsNetworkError(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), server.Client(), server.URL, "/analysis/nope.json")
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindNetwork))
	require.Contains(t, err.Error(), "status 404")
	require.Equal(t, 1, hits)
}

func TestFetchWithoutRef(t *testing.T) {
	_, err := Fetch(context.Background(), nil, "http://localhost:5000", "")
	require.True(t, errors.Is(err, ErrNoAnalysisRef))
}
