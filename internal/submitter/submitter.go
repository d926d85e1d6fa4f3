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

package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"check-deposit-go/internal/cache"
	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/metrics"
	"check-deposit-go/internal/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxImageBytes is the per-side upload limit used when none is configured.
const DefaultMaxImageBytes = 10 << 20

// Remote performs the network submission.
type Remote interface {
	Submit(ctx context.Context, req *models.DepositRequest) (*models.Deposit, error)
}

// Submitter sends one DepositRequest per capture session. Repeated or concurrent
// submits of the same session yield the same deposit.
type Submitter struct {
	remote        Remote
	cache         cache.IdempotencyCache
	validate      *validator.Validate
	inflight      singleflight.Group
	maxImageBytes int
	metrics       metrics.Collector
}

// Option customizes a Submitter.
type Option func(*Submitter)

// WithCache replaces the default in-memory idempotency cache.
func WithCache(c cache.IdempotencyCache) Option {
	return func(s *Submitter) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithMaxImageBytes(n int) Option {
	return func(s *Submitter) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *Submitter) {
		if m != nil {
			s.metrics = m
		}
	}
}

func New(remote Remote, opts ...Option) *Submitter {
	s := &Submitter{
		remote:        remote,
		cache:         cache.NewMemoryCache(24 * time.Hour),
		validate:      validator.New(),
		maxImageBytes: DefaultMaxImageBytes,
		metrics:       metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit returns the deposit for req, creating it on the first call for the
// session. Failures are *errs.SubmissionError or *errs.ValidationBlockingError.
func (s *Submitter) Submit(ctx context.Context, req *models.DepositRequest) (*models.Deposit, error) {
	if req == nil {
		return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, "no deposit request")
	}
	if err := s.precheck(req); err != nil {
		s.recordFailure(err)
		return nil, err
	}

	if d, ok := s.cache.Get(ctx, req.SessionId); ok {
		zap.L().Info("Returning cached deposit for session",
			zap.String("session_id", req.SessionId),
			zap.String("deposit_id", d.Id))
		s.metrics.RecordSubmission("replayed")
		return d, nil
	}

	start := time.Now()
	v, err, shared := s.inflight.Do(req.SessionId, func() (interface{}, error) {
		d, err := s.remote.Submit(ctx, req)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, req.SessionId, d)
		return d, nil
	})
	s.metrics.RecordStage("submit", err == nil, time.Since(start))
	if err != nil {
		var subErr *errs.SubmissionError
		if !errors.As(err, &subErr) {
			err = errs.NetworkFailure(err)
		}
		s.recordFailure(err)
		zap.L().Warn("Deposit submission failed",
			zap.String("session_id", req.SessionId),
			zap.Bool("retryable", errs.IsRetryable(err)),
			zap.Error(err))
		return nil, err
	}

	d := *v.(*models.Deposit)
	if shared {
		s.metrics.RecordSubmission("collapsed")
	} else {
		s.metrics.RecordSubmission("created")
	}
	zap.L().Info("Deposit submitted",
		zap.String("session_id", req.SessionId),
		zap.String("deposit_id", d.Id),
		zap.String("status", string(d.Status)))
	return &d, nil
}

// Forget drops the cached deposit for a session.
func (s *Submitter) Forget(ctx context.Context, sessionId string) {
	s.cache.Delete(ctx, sessionId)
}

func (s *Submitter) precheck(req *models.DepositRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return errs.NewSubmissionError(errs.ReasonInvalidRequest, err.Error())
	}
	if !req.Amount.IsPositive() {
		return errs.NewSubmissionError(errs.ReasonInvalidRequest, "deposit amount must be greater than zero")
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return errs.NewSubmissionError(errs.ReasonInvalidRequest, "deposit amount has more than two decimal places")
	}
	for _, img := range []models.CheckImage{req.Front, req.Back} {
		if img.Empty() {
			return errs.NewSubmissionError(errs.ReasonInvalidRequest, fmt.Sprintf("%s image is missing", img.Side))
		}
		if len(img.Data) > s.maxImageBytes {
			return errs.NewSubmissionError(errs.ReasonPayloadTooLarge,
				fmt.Sprintf("%s image is %d bytes, limit is %d", img.Side, len(img.Data), s.maxImageBytes))
		}
	}
	if req.Verdict == nil {
		if req.Override {
			return errs.NewSubmissionError(errs.ReasonInvalidRequest, "override requires a validation verdict")
		}
		return nil
	}
	if req.Verdict.IsValid {
		return nil
	}
	if req.Override && req.Verdict.CanOverride() {
		return nil
	}
	return &errs.ValidationBlockingError{Verdict: *req.Verdict}
}

func (s *Submitter) recordFailure(err error) {
	var subErr *errs.SubmissionError
	if errors.As(err, &subErr) {
		s.metrics.RecordSubmission(string(subErr.Reason))
		return
	}
	s.metrics.RecordSubmission("blocked")
}
