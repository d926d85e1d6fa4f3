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

package pipeline

import (
	"context"
	"fmt"
	"time"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/ocr"
	"check-deposit-go/internal/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// QualityChecker scores one capture.
type QualityChecker interface {
	Check(ctx context.Context, image models.CheckImage) (models.QualityResult, error)
}

// Validator produces a verdict for a merged extraction.
type Validator interface {
	Evaluate(ctx context.Context, in validation.Input) models.ValidationVerdict
}

// Submitter sends the assembled request.
type Submitter interface {
	Submit(ctx context.Context, req *models.DepositRequest) (*models.Deposit, error)
}

// Stage names reported to progress callbacks.
const (
	StageQuality    = "quality"
	StageOcr        = "ocr"
	StageValidation = "validation"
	StageSubmit     = "submit"
)

// Session is one capture session: the two images and what the user entered.
type Session struct {
	SessionId         string
	AccountId         string
	Amount            decimal.Decimal
	Memo              string
	Device            models.DeviceMetadata
	Front             models.CheckImage
	Back              models.CheckImage
	Override          bool
	OriginalDepositId string
}

// Result carries everything produced by a run, including partial output when a
// stage stopped it.
type Result struct {
	SessionId    string
	FrontQuality models.QualityResult
	BackQuality  models.QualityResult
	Extracted    *models.ExtractedCheckData
	Verdict      *models.ValidationVerdict
	Deposit      *models.Deposit
}

// Pipeline runs capture sessions. It holds no per-session state, so one
// Pipeline may run many sessions concurrently.
type Pipeline struct {
	gate      QualityChecker
	extractor ocr.Extractor
	validator Validator
	submitter Submitter
	progress  func(stage string)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithProgress registers a callback invoked when each stage starts.
func WithProgress(fn func(stage string)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

func New(gate QualityChecker, extractor ocr.Extractor, validator Validator, submitter Submitter, opts ...Option) *Pipeline {
	p := &Pipeline{
		gate:      gate,
		extractor: extractor,
		validator: validator,
		submitter: submitter,
		progress:  func(string) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run takes a session from capture to a submitted deposit. The stages run in
// order; front and back are processed concurrently within a stage. A capture
// that fails the quality gate stops the run before OCR unless Override is set.
func (p *Pipeline) Run(ctx context.Context, s Session) (*Result, error) {
	if s.SessionId == "" {
		s.SessionId = uuid.NewString()
	}
	res := &Result{SessionId: s.SessionId}
	log := zap.L().With(zap.String("session_id", s.SessionId))
	start := time.Now()

	p.progress(StageQuality)
	if err := p.checkQuality(ctx, s, res); err != nil {
		log.Info("Capture stopped at quality gate", zap.Error(err))
		return res, err
	}

	p.progress(StageOcr)
	extracted, err := p.extract(ctx, s)
	if err != nil {
		log.Warn("OCR failed", zap.Error(err))
		return res, err
	}
	res.Extracted = extracted

	p.progress(StageValidation)
	verdict := p.validator.Evaluate(ctx, validation.Input{
		AccountId: s.AccountId,
		Extracted: extracted,
		Declared:  s.Amount,
		Quality:   []models.QualityResult{res.FrontQuality, res.BackQuality},
	})
	res.Verdict = &verdict
	if !verdict.IsValid && !(s.Override && verdict.CanOverride()) {
		log.Info("Validation blocked submission",
			zap.Int("errors", len(verdict.Errors)),
			zap.Bool("overridable", verdict.CanOverride()))
		return res, &errs.ValidationBlockingError{Verdict: verdict}
	}

	p.progress(StageSubmit)
	deposit, err := p.submitter.Submit(ctx, &models.DepositRequest{
		SessionId:         s.SessionId,
		AccountId:         s.AccountId,
		Amount:            s.Amount,
		Memo:              s.Memo,
		Device:            s.Device,
		Extracted:         extracted,
		Verdict:           &verdict,
		Override:          s.Override && !verdict.IsValid,
		OriginalDepositId: s.OriginalDepositId,
		Front:             s.Front,
		Back:              s.Back,
	})
	if err != nil {
		return res, err
	}
	res.Deposit = deposit

	log.Info("Capture session submitted",
		zap.String("deposit_id", deposit.Id),
		zap.Float64("risk_score", verdict.RiskScore),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (p *Pipeline) checkQuality(ctx context.Context, s Session, res *Result) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := p.gate.Check(gctx, s.Front)
		if err != nil {
			return fmt.Errorf("front image: %w", err)
		}
		res.FrontQuality = r
		return nil
	})
	g.Go(func() error {
		r, err := p.gate.Check(gctx, s.Back)
		if err != nil {
			return fmt.Errorf("back image: %w", err)
		}
		res.BackQuality = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if s.Override {
		return nil
	}
	if !res.FrontQuality.Acceptable {
		return &errs.SoftQualityFailure{Side: models.SideFront, Result: res.FrontQuality}
	}
	if !res.BackQuality.Acceptable {
		return &errs.SoftQualityFailure{Side: models.SideBack, Result: res.BackQuality}
	}
	return nil
}

// extract runs OCR on both sides independently and merges the results once
// both have completed.
func (p *Pipeline) extract(ctx context.Context, s Session) (*models.ExtractedCheckData, error) {
	var front, back *models.ExtractedCheckData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		front, err = p.extractor.Extract(gctx, s.Front)
		return err
	})
	g.Go(func() error {
		var err error
		back, err = p.extractor.Extract(gctx, s.Back)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ocr.Merge(front, back), nil
}
