package quality

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	assessment *Assessment
	err        error
	calls      int
}

func (f *fakeScorer) Score(context.Context, models.CheckImage) (*Assessment, error) {
	f.calls++
	return f.assessment, f.err
}

func image(side models.Side) models.CheckImage {
	return models.CheckImage{Side: side, Data: []byte{0xff, 0xd8, 0xff}, MimeType: "image/jpeg"}
}

func ptr(f float64) *float64 { return &f }

func TestPrecomputedLowScoreRejectedWithoutScorer(t *testing.T) {
	scorer := &fakeScorer{assessment: &Assessment{Acceptable: true}}
	gate := NewGate(scorer, models.QualityConfig{MinScore: 0.5})

	img := image(models.SideFront)
	img.QualityScore = ptr(0.35)

	result, err := gate.Check(context.Background(), img)
	require.NoError(t, err)
	assert.False(t, result.Acceptable)
	assert.Equal(t, rejectedScore, result.Score)
	assert.NotEmpty(t, result.Suggestions)
	assert.Zero(t, scorer.calls)
}

func TestAcceptableScoreFormula(t *testing.T) {
	scorer := &fakeScorer{assessment: &Assessment{
		Acceptable: true,
		Metrics:    models.QualityMetrics{Resolution: 300, Contrast: 0.9, Blur: 0.1, SkewDegrees: -2},
	}}
	gate := NewGate(scorer, models.QualityConfig{})

	result, err := gate.Check(context.Background(), image(models.SideFront))
	require.NoError(t, err)
	assert.True(t, result.Acceptable)
	assert.InDelta(t, 0.9*0.9*0.8, result.Score, 1e-9)
	assert.Empty(t, result.Issues)
}

func TestScoreIsClamped(t *testing.T) {
	assert.Equal(t, 1.0, Score(models.QualityMetrics{Contrast: 3}))
	assert.Equal(t, 0.0, Score(models.QualityMetrics{Contrast: 0.9, SkewDegrees: 25}))
	assert.Equal(t, 0.0, Score(models.QualityMetrics{Contrast: 0.9, Blur: 1.5}))
}

func TestRejectedCaptureGetsMatchingSuggestions(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"Resolution too low", DefaultSuggestions["resolution"]},
		{"Low contrast", DefaultSuggestions["contrast"]},
		{"Image is blurry: blur 0.8", DefaultSuggestions["blur"]},
		{"Check skew exceeds limit", DefaultSuggestions["skew"]},
		{"something odd", genericSuggestion},
	}
	for _, tt := range tests {
		gate := NewGate(&fakeScorer{assessment: &Assessment{Acceptable: false, Reason: tt.reason}}, models.QualityConfig{})
		result, err := gate.Check(context.Background(), image(models.SideBack))
		require.NoError(t, err)
		assert.False(t, result.Acceptable)
		assert.Equal(t, rejectedScore, result.Score)
		assert.Contains(t, result.Suggestions, tt.want, tt.reason)
		assert.NotEmpty(t, result.Issues)
	}
}

func TestScorerFailureIsSoft(t *testing.T) {
	gate := NewGate(&fakeScorer{err: errors.New("connection refused")}, models.QualityConfig{})
	result, err := gate.Check(context.Background(), image(models.SideFront))
	require.NoError(t, err)
	assert.False(t, result.Acceptable)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, []string{genericIssue}, result.Issues)
	assert.NotEmpty(t, result.Suggestions)
}

func TestEmptyImageIsRejected(t *testing.T) {
	gate := NewGate(&fakeScorer{}, models.QualityConfig{})
	_, err := gate.Check(context.Background(), models.CheckImage{Side: models.SideFront})
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestHTTPScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quality", r.URL.Path)
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.SideFront, req.Side)
		assert.Equal(t, []byte{0xff, 0xd8, 0xff}, req.Image)
		_ = json.NewEncoder(w).Encode(Assessment{Acceptable: false, Reason: "blur", Metrics: models.QualityMetrics{Blur: 0.7}})
	}))
	defer srv.Close()

	client := transport.NewClient("quality", srv.Client(), models.RetryConfig{MaxAttempts: 1}, models.BreakerConfig{})
	a, err := NewHTTPScorer(client, srv.URL, "").Score(context.Background(), image(models.SideFront))
	require.NoError(t, err)
	assert.False(t, a.Acceptable)
	assert.Equal(t, 0.7, a.Metrics.Blur)
}

func TestHTTPScorerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := transport.NewClient("quality", srv.Client(), models.RetryConfig{MaxAttempts: 1}, models.BreakerConfig{})
	gate := NewGate(NewHTTPScorer(client, srv.URL, ""), models.QualityConfig{})
	result, err := gate.Check(context.Background(), image(models.SideFront))
	require.NoError(t, err)
	assert.False(t, result.Acceptable)
	assert.Zero(t, result.Score)
}
