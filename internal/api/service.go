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

package api

import (
	"context"
	"fmt"
	"time"

	"check-deposit-go/internal/events"
	"check-deposit-go/internal/metrics"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// DepositService implements the deposit backend: intake, manual actions and
// the lifecycle transitions driven by the processor.
type DepositService struct {
	store     store.DepositStore
	ledger    store.FundsLedger
	publisher events.Publisher
	scorer    FraudScorer
	index     *DuplicateIndex
	metrics   metrics.Collector
	validate  *validator.Validate

	limits          models.LimitsConfig
	hold            models.HoldPolicyConfig
	currency        string
	maxImageBytes   int64
	highRisk        float64
	reviewThreshold float64
	rejectThreshold float64
	now             func() time.Time
}

// Option customizes a DepositService.
type Option func(*DepositService)

// WithScorer replaces the default heuristic fraud scorer.
func WithScorer(scorer FraudScorer) Option {
	return func(s *DepositService) { s.scorer = scorer }
}

// WithMetrics records intake outcomes and transitions.
func WithMetrics(collector metrics.Collector) Option {
	return func(s *DepositService) { s.metrics = collector }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *DepositService) { s.now = now }
}

func NewDepositService(st store.DepositStore, ledger store.FundsLedger, publisher events.Publisher, cfg *models.Config, opts ...Option) *DepositService {
	s := &DepositService{
		store:         st,
		ledger:        ledger,
		publisher:     publisher,
		index:         NewDuplicateIndex(100000, 0.001),
		metrics:       metrics.NoOpCollector{},
		validate:      validator.New(),
		limits:        cfg.Limits,
		hold:          cfg.Hold,
		currency:      cfg.Ledger.Currency,
		maxImageBytes: cfg.Server.MaxImageBytes,
		now:           time.Now,
	}
	s.highRisk = orDefault(cfg.Validation.HighRiskThreshold, 0.7)
	s.reviewThreshold = orDefault(cfg.Processor.ReviewThreshold, 0.3)
	s.rejectThreshold = orDefault(cfg.Processor.RejectThreshold, 0.9)
	s.scorer = NewHeuristicScorer(withDefaultLimits(cfg.Limits))
	for _, opt := range opts {
		opt(s)
	}
	if s.currency == "" {
		s.currency = "USD"
	}
	if s.maxImageBytes <= 0 {
		s.maxImageBytes = 10 << 20
	}
	s.limits = withDefaultLimits(s.limits)
	if s.hold.StandardImmediate.IsZero() && s.hold.LargeDeposit.IsZero() {
		s.hold = DefaultHoldPolicy()
	}
	return s
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func (s *DepositService) HealthCheck(ctx context.Context) error {
	_, err := s.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// LoadDuplicateIndex seeds the duplicate prefilter with every check submitted
// inside the duplicate window.
func (s *DepositService) LoadDuplicateIndex(ctx context.Context) error {
	keys, err := s.store.DuplicateKeysSince(ctx, s.now().Add(-s.limits.DuplicateWindow))
	if err != nil {
		return fmt.Errorf("failed to load duplicate keys: %w", err)
	}
	s.index.Seed(keys)
	zap.L().Info("Duplicate index loaded", zap.Int("keys", len(keys)))
	return nil
}

// Get returns a deposit the principal may see.
func (s *DepositService) Get(ctx context.Context, principal Principal, depositId string) (*models.Deposit, error) {
	d, err := s.store.GetDeposit(ctx, depositId)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(d.AccountId) {
		// Not revealing other customers' deposits
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, depositId)
	}
	return d, nil
}

// Transition moves a deposit to a new status and publishes the change. The
// publish failure is logged, never returned: the transition is already durable.
func (s *DepositService) Transition(ctx context.Context, d *models.Deposit, to models.DepositStatus, reason string, hold *store.HoldDecision, risk *float64) (*models.Deposit, error) {
	from := d.Status
	updated, err := s.store.TransitionDeposit(ctx, store.TransitionParams{
		DepositId:       d.Id,
		ExpectedVersion: d.Version,
		To:              to,
		Reason:          reason,
		At:              s.now(),
		Hold:            hold,
		RiskScore:       risk,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(string(from), string(to))

	s.publishStatus(ctx, updated, from, reason)
	return updated, nil
}

func (s *DepositService) publishStatus(ctx context.Context, d *models.Deposit, from models.DepositStatus, reason string) {
	event := models.DepositStatusEvent{
		DepositId:  d.Id,
		AccountId:  d.AccountId,
		From:       from,
		To:         d.Status,
		Amount:     d.Amount.StringFixed(2),
		Reason:     reason,
		OccurredAt: d.UpdatedAt,
	}
	if err := s.publisher.PublishStatus(ctx, event); err != nil {
		zap.L().Error("Failed to publish status event",
			zap.String("deposit_id", d.Id),
			zap.String("status", string(d.Status)),
			zap.Error(err))
	}
}
