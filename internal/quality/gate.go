/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package quality

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"check-deposit-go/internal/metrics"
	"check-deposit-go/internal/models"

	"go.uber.org/zap"
)

// ErrEmptyImage is returned when the gate is invoked without image content.
var ErrEmptyImage = errors.New("check image has no content")

// Score reported for every capture the scoring service does not accept.
const rejectedScore = 0.3

// Assessment is the scoring service's raw judgement of a capture.
type Assessment struct {
	Acceptable bool                  `json:"acceptable"`
	Reason     string                `json:"reason,omitempty"`
	Issues     []string              `json:"issues,omitempty"`
	Metrics    models.QualityMetrics `json:"metrics"`
}

// Scorer measures a capture. Implementations call a remote model.
type Scorer interface {
	Score(ctx context.Context, image models.CheckImage) (*Assessment, error)
}

// DefaultSuggestions maps failure keywords to the retake guidance shown to users.
var DefaultSuggestions = map[string]string{
	"resolution": "Move closer so the check fills the frame, then retake the photo.",
	"contrast":   "Improve lighting and place the check on a dark, plain background.",
	"blur":       "Hold the phone steady and tap to focus before taking the photo.",
	"skew":       "Align the check straight within the on-screen guides.",
}

const (
	genericIssue      = "Image quality could not be verified"
	genericSuggestion = "Retake the photo in good lighting, or continue anyway."
)

// Gate scores single captures before they may enter the pipeline.
type Gate struct {
	scorer      Scorer
	minScore    float64
	suggestions map[string]string
	metrics     metrics.Collector
}

// Option customizes a Gate.
type Option func(*Gate)

// WithSuggestions replaces the suggestion table.
func WithSuggestions(table map[string]string) Option {
	return func(g *Gate) {
		if len(table) > 0 {
			g.suggestions = table
		}
	}
}

// WithMetrics reports gate outcomes to m.
func WithMetrics(m metrics.Collector) Option {
	return func(g *Gate) { g.metrics = m }
}

// NewGate creates a gate. Captures whose pre-computed score is below
// cfg.MinScore are rejected without consulting the scorer.
func NewGate(scorer Scorer, cfg models.QualityConfig, opts ...Option) *Gate {
	g := &Gate{
		scorer:      scorer,
		minScore:    cfg.MinScore,
		suggestions: DefaultSuggestions,
		metrics:     metrics.NoOpCollector{},
	}
	if g.minScore <= 0 {
		g.minScore = 0.5
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check evaluates one capture. Failing to reach the scoring service is a soft
// failure: the result is unacceptable with score 0 and err is nil.
func (g *Gate) Check(ctx context.Context, image models.CheckImage) (models.QualityResult, error) {
	if image.Empty() {
		return models.QualityResult{}, ErrEmptyImage
	}

	start := time.Now()
	result := g.evaluate(ctx, image)
	g.metrics.RecordStage("quality", result.Acceptable, time.Since(start))
	g.metrics.RecordQuality(string(image.Side), result.Acceptable)

	zap.L().Debug("Image quality evaluated",
		zap.String("side", string(image.Side)),
		zap.Bool("acceptable", result.Acceptable),
		zap.Float64("score", result.Score),
		zap.Strings("issues", result.Issues))
	return result, nil
}

func (g *Gate) evaluate(ctx context.Context, image models.CheckImage) models.QualityResult {
	if image.QualityScore != nil && *image.QualityScore < g.minScore {
		return models.QualityResult{
			Acceptable:  false,
			Issues:      []string{"Image quality score is below the minimum required"},
			Suggestions: []string{genericSuggestion},
			Score:       rejectedScore,
		}
	}

	a, err := g.scorer.Score(ctx, image)
	if err != nil {
		zap.L().Warn("Quality scoring service unavailable",
			zap.String("side", string(image.Side)),
			zap.Error(err))
		return models.QualityResult{
			Acceptable:  false,
			Issues:      []string{genericIssue},
			Suggestions: []string{genericSuggestion},
			Score:       0,
		}
	}

	measured := a.Metrics
	if a.Acceptable {
		return models.QualityResult{
			Acceptable:  true,
			Issues:      []string{},
			Suggestions: []string{},
			Score:       Score(a.Metrics),
			Metrics:     &measured,
		}
	}

	issues := a.Issues
	if len(issues) == 0 && a.Reason != "" {
		issues = []string{a.Reason}
	}
	if len(issues) == 0 {
		issues = []string{genericIssue}
	}
	return models.QualityResult{
		Acceptable:  false,
		Issues:      issues,
		Suggestions: g.suggest(append([]string{a.Reason}, issues...)),
		Score:       rejectedScore,
		Metrics:     &measured,
	}
}

// suggest matches failure texts against the suggestion table. The result is
// never empty.
func (g *Gate) suggest(reasons []string) []string {
	keys := make([]string, 0, len(g.suggestions))
	for k := range g.suggestions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	seen := make(map[string]bool)
	for _, r := range reasons {
		lower := strings.ToLower(r)
		for _, k := range keys {
			if strings.Contains(lower, k) && !seen[k] {
				seen[k] = true
				out = append(out, g.suggestions[k])
			}
		}
	}
	if len(out) == 0 {
		out = []string{genericSuggestion}
	}
	return out
}

// Score is clamp01(contrast * (1 - blur) * (1 - |skew|/10)).
func Score(m models.QualityMetrics) float64 {
	return clamp01(m.Contrast * (1 - m.Blur) * (1 - math.Abs(m.SkewDegrees)/10))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
