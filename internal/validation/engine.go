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

package validation

import (
	"context"
	"fmt"
	"math"
	"time"

	"check-deposit-go/internal/metrics"
	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Backend supplies the server-authoritative duplicate and fraud signals.
type Backend interface {
	Assess(ctx context.Context, req models.AssessmentRequest) (*models.Assessment, error)
}

const (
	defaultStalenessWindow = 180 * 24 * time.Hour
	defaultFraudFloor      = 0.6
	defaultHighRisk        = 0.7
	defaultLowConfidence   = 0.8

	// Risk used for the fail-closed verdict.
	unavailableRisk = 0.5
)

var defaultTolerance = decimal.New(1, -2)

// Engine runs every check against one extraction and accumulates all failures.
type Engine struct {
	backend Backend
	cfg     models.ValidationConfig
	now     func() time.Time
	metrics metrics.Collector
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for date checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m metrics.Collector) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func NewEngine(backend Backend, cfg models.ValidationConfig, opts ...Option) *Engine {
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = defaultStalenessWindow
	}
	if cfg.AmountTolerance.IsZero() {
		cfg.AmountTolerance = defaultTolerance
	}
	if cfg.FraudConfidenceFloor <= 0 {
		cfg.FraudConfidenceFloor = defaultFraudFloor
	}
	if cfg.HighRiskThreshold <= 0 {
		cfg.HighRiskThreshold = defaultHighRisk
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = defaultLowConfidence
	}
	e := &Engine{
		backend: backend,
		cfg:     cfg,
		now:     time.Now,
		metrics: metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is everything a verdict is computed from.
type Input struct {
	AccountId string
	Extracted *models.ExtractedCheckData
	Declared  decimal.Decimal
	// Quality results of the captures, if the gate ran.
	Quality []models.QualityResult
}

// Validate computes a verdict for extracted data and the declared amount.
func (e *Engine) Validate(ctx context.Context, extracted *models.ExtractedCheckData, declared decimal.Decimal) models.ValidationVerdict {
	return e.Evaluate(ctx, Input{Extracted: extracted, Declared: declared})
}

// Evaluate runs the checks in order. A failing check never stops the ones after
// it. If the backend cannot be reached the verdict fails closed.
func (e *Engine) Evaluate(ctx context.Context, in Input) models.ValidationVerdict {
	start := time.Now()
	v := e.evaluate(ctx, in)
	e.metrics.RecordStage("validation", !isUnavailable(v), time.Since(start))
	e.metrics.RecordVerdict(v.IsValid, v.CanOverride(), v.RiskScore)
	return v
}

func (e *Engine) evaluate(ctx context.Context, in Input) models.ValidationVerdict {
	if in.Extracted == nil {
		return Unavailable("no extracted check data")
	}
	x := in.Extracted
	b := &builder{}

	b.checks.AmountConsistency = e.checkAmount(b, x, in.Declared)
	b.checks.MicrValidation = e.checkMicr(b, x)
	b.checks.DateValidation = e.checkDate(b, x)
	b.checks.EndorsementCheck = e.checkEndorsement(b, x)

	if e.backend == nil {
		return Unavailable("no validation backend configured")
	}
	assessment, err := e.backend.Assess(ctx, models.AssessmentRequest{
		AccountId:      in.AccountId,
		Extracted:      *x,
		DeclaredAmount: in.Declared,
	})
	if err != nil {
		zap.L().Warn("Validation backend unavailable, failing closed", zap.Error(err))
		return Unavailable(err.Error())
	}

	b.checks.DuplicateCheck = e.checkDuplicate(b, assessment)
	b.checks.FraudCheck = e.checkFraud(b, x, assessment)
	b.checks.ImageQuality = e.checkImageQuality(b, x, in.Quality)

	for _, w := range assessment.Warnings {
		b.warn(w)
	}
	for _, er := range assessment.Errors {
		b.fail(er)
	}

	v := b.verdict()
	v.RiskScore = riskScore(assessment.RiskScore, x.Confidence, len(v.Errors))

	zap.L().Debug("Validation complete",
		zap.Bool("valid", v.IsValid),
		zap.Int("errors", len(v.Errors)),
		zap.Int("warnings", len(v.Warnings)),
		zap.Float64("risk_score", v.RiskScore))
	return v
}

func (e *Engine) checkAmount(b *builder, x *models.ExtractedCheckData, declared decimal.Decimal) bool {
	ok := true
	if !declared.IsPositive() {
		b.fail(models.Issue{
			Check:      models.CheckAmountConsistency,
			Message:    "Deposit amount must be greater than zero",
			Suggestion: "Enter the amount written on the check.",
		})
		ok = false
	}
	if x.NumericAmount == nil {
		b.fail(models.Issue{
			Check:      models.CheckAmountConsistency,
			Message:    "The amount on the check could not be read",
			Suggestion: "Retake the front of the check so the amount box is clearly visible.",
		})
		return false
	}
	if x.NumericAmount.Sub(declared).Abs().GreaterThan(e.cfg.AmountTolerance) {
		b.fail(models.Issue{
			Check:      models.CheckAmountConsistency,
			Message:    fmt.Sprintf("Entered amount %s does not match the check amount %s", declared.StringFixed(2), x.NumericAmount.StringFixed(2)),
			Suggestion: "Correct the deposit amount to match the check.",
		})
		ok = false
	}
	if x.AmountMismatch {
		b.fail(models.Issue{
			Check:      models.CheckAmountConsistency,
			Message:    "The written amount and the numeric amount on the check disagree",
			Suggestion: "Ask the issuer for a corrected check before depositing.",
		})
		ok = false
	}
	return ok
}

func (e *Engine) checkMicr(b *builder, x *models.ExtractedCheckData) bool {
	if x.RoutingNumber == nil {
		b.fail(models.Issue{
			Check:      models.CheckMicr,
			Message:    "The routing number could not be read",
			Suggestion: "Retake the front so the numbers along the bottom edge are sharp.",
		})
		return false
	}
	if !ValidRoutingNumber(*x.RoutingNumber) {
		b.fail(models.Issue{
			Check:      models.CheckMicr,
			Message:    "The routing number is not valid",
			Suggestion: "Retake the front so the numbers along the bottom edge are sharp.",
		})
		return false
	}
	if x.AccountNumber == nil {
		b.warn(models.Issue{
			Check:      models.CheckMicr,
			Message:    "The account number could not be read",
			Suggestion: "Retake the front if the bottom line of the check is obscured.",
		})
	}
	return true
}

func (e *Engine) checkDate(b *builder, x *models.ExtractedCheckData) bool {
	if x.CheckDate == nil {
		b.warn(models.Issue{
			Check:      models.CheckDate,
			Message:    "The check date could not be read",
			Suggestion: "Make sure the date is visible and the check is not post-dated.",
		})
		return false
	}
	checkDay := calendarDay(*x.CheckDate)
	today := calendarDay(e.now())
	if checkDay.After(today) {
		b.fail(models.Issue{
			Check:      models.CheckDate,
			Message:    "The check is post-dated",
			Suggestion: "Deposit the check on or after " + x.CheckDate.Format("Jan 2, 2006") + ".",
		})
		return false
	}
	if today.Sub(checkDay) > e.cfg.StalenessWindow {
		b.fail(models.Issue{
			Check:      models.CheckDate,
			Message:    "The check is too old to deposit",
			Suggestion: "Ask the issuer to write a new check.",
		})
		return false
	}
	return true
}

// calendarDay reduces t to its date in its own location. Check dates carry no
// time of day, so both sides of a comparison must be whole days.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *Engine) checkEndorsement(b *builder, x *models.ExtractedCheckData) bool {
	if x.Endorsed != nil && *x.Endorsed {
		return true
	}
	b.fail(models.Issue{
		Check:      models.CheckEndorsement,
		Message:    "No endorsement was found on the back of the check",
		Suggestion: `Sign the back of the check and write "For mobile deposit only", then retake the back.`,
	})
	return false
}

func (e *Engine) checkDuplicate(b *builder, a *models.Assessment) bool {
	if a.DuplicateCheck {
		return true
	}
	b.fail(models.Issue{
		Check:      models.CheckDuplicate,
		Message:    "This check appears to have been deposited already",
		Suggestion: "Check your deposit history or contact support.",
	})
	return false
}

// checkFraud only blocks when the fraud flag is confirmed or paired with a low
// confidence read.
func (e *Engine) checkFraud(b *builder, x *models.ExtractedCheckData, a *models.Assessment) bool {
	flagged := !a.FraudCheck || a.RiskScore >= e.cfg.HighRiskThreshold
	switch {
	case a.FraudConfirmed:
		b.fail(models.Issue{
			Check:      models.CheckFraud,
			Message:    "This check cannot be deposited",
			Suggestion: "Contact support for help with this check.",
		})
		return false
	case flagged && x.Confidence < e.cfg.FraudConfidenceFloor:
		b.fail(models.Issue{
			Check:      models.CheckFraud,
			Message:    "This check needs additional verification",
			Suggestion: "Retake both sides in good lighting, or contact support.",
		})
		return false
	case flagged:
		b.warn(models.Issue{
			Check:      models.CheckFraud,
			Message:    "This deposit may be held for review",
			Suggestion: "Funds may take longer to become available.",
		})
		return false
	}
	return true
}

func (e *Engine) checkImageQuality(b *builder, x *models.ExtractedCheckData, quality []models.QualityResult) bool {
	ok := true
	for _, q := range quality {
		if q.Acceptable {
			continue
		}
		suggestion := "Retake the photo in good lighting."
		if len(q.Suggestions) > 0 {
			suggestion = q.Suggestions[0]
		}
		b.fail(models.Issue{
			Check:       models.CheckImageQuality,
			Message:     "Image quality is marginal",
			Suggestion:  suggestion,
			Overridable: true,
		})
		ok = false
		break
	}
	switch {
	case x.Confidence < e.cfg.FraudConfidenceFloor:
		b.fail(models.Issue{
			Check:       models.CheckImageQuality,
			Message:     fmt.Sprintf("The check was read with low confidence (%.0f%%)", x.Confidence*100),
			Suggestion:  "Retake both sides on a dark, plain background, or continue anyway.",
			Overridable: true,
		})
		ok = false
	case x.Confidence < e.cfg.LowConfidence:
		b.warn(models.Issue{
			Check:      models.CheckImageQuality,
			Message:    "Some fields were read with low confidence",
			Suggestion: "Review the extracted details before submitting.",
		})
	}
	return ok
}

// riskScore blends the backend fraud estimate, OCR uncertainty and the number
// of blocking failures.
func riskScore(fraud, confidence float64, blocking int) float64 {
	return clamp01(0.7*clamp01(fraud) + 0.3*(1-clamp01(confidence)) + 0.1*float64(blocking))
}

// Unavailable is the fail-closed verdict used whenever validation cannot run.
func Unavailable(detail string) models.ValidationVerdict {
	zap.L().Debug("Returning fail-closed verdict", zap.String("detail", detail))
	return models.ValidationVerdict{
		IsValid: false,
		Errors: []models.Issue{{
			Check:      models.CheckService,
			Message:    "validation service unavailable",
			Suggestion: "Try again in a few minutes.",
		}},
		RiskScore: unavailableRisk,
	}
}

func isUnavailable(v models.ValidationVerdict) bool {
	return len(v.Errors) == 1 && v.Errors[0].Check == models.CheckService
}

type builder struct {
	warnings []models.Issue
	errors   []models.Issue
	checks   models.ValidationChecks
}

func (b *builder) warn(i models.Issue) { b.warnings = append(b.warnings, i) }

func (b *builder) fail(i models.Issue) { b.errors = append(b.errors, i) }

func (b *builder) verdict() models.ValidationVerdict {
	return models.ValidationVerdict{
		IsValid:  len(b.errors) == 0,
		Warnings: b.warnings,
		Errors:   b.errors,
		Checks:   b.checks,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
