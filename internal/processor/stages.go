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

package processor

import (
	"context"
	"fmt"

	"check-deposit-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunStats counts what one polling pass did.
type RunStats struct {
	Started  int
	Decided  int
	Released int
	Failed   int
	Errors   int
}

// RunOnce performs a single polling pass over every actionable status.
func (p *Processor) RunOnce(ctx context.Context) RunStats {
	var stats RunStats

	stages := []struct {
		status models.DepositStatus
		handle func(context.Context, *models.Deposit) (outcome, error)
	}{
		{models.StatusSubmitted, p.handleSubmitted},
		{models.StatusProcessing, p.handleProcessing},
		{models.StatusApproved, p.handleApproved},
	}

	for _, stage := range stages {
		deposits, err := p.store.ListDepositsByStatus(ctx, stage.status, p.batchSize)
		if err != nil {
			zap.L().Error("Failed to list deposits",
				zap.String("status", string(stage.status)),
				zap.Error(err))
			stats.Errors++
			continue
		}
		if len(deposits) == 0 {
			continue
		}

		outcomes := make([]outcome, len(deposits))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for i := range deposits {
			g.Go(func() error {
				out, err := stage.handle(gctx, &deposits[i])
				if err != nil {
					zap.L().Error("Failed to process deposit",
						zap.String("deposit_id", deposits[i].Id),
						zap.String("status", string(stage.status)),
						zap.Error(err))
					out = outcomeError
				}
				outcomes[i] = out
				return nil
			})
		}
		_ = g.Wait()

		for _, out := range outcomes {
			stats.add(out)
		}
	}

	if stats != (RunStats{}) {
		zap.L().Info("Processing pass complete",
			zap.Int("started", stats.Started),
			zap.Int("decided", stats.Decided),
			zap.Int("released", stats.Released),
			zap.Int("failed", stats.Failed),
			zap.Int("errors", stats.Errors))
	}
	return stats
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeStarted
	outcomeDecided
	outcomeReleased
	outcomeFailed
	outcomeError
)

func (s *RunStats) add(o outcome) {
	switch o {
	case outcomeStarted:
		s.Started++
		s.Decided++
	case outcomeDecided:
		s.Decided++
	case outcomeReleased:
		s.Released++
	case outcomeFailed:
		s.Failed++
	case outcomeError:
		s.Errors++
	}
}

// handleSubmitted starts verification and immediately runs the risk decision.
func (p *Processor) handleSubmitted(ctx context.Context, d *models.Deposit) (outcome, error) {
	processing, err := p.service.Transition(ctx, d, models.StatusProcessing, "", nil, nil)
	if err != nil {
		return outcomeNone, fmt.Errorf("failed to start processing: %w", err)
	}
	if err := p.decide(ctx, processing); err != nil {
		return outcomeNone, err
	}
	return outcomeStarted, nil
}

func (p *Processor) handleProcessing(ctx context.Context, d *models.Deposit) (outcome, error) {
	if err := p.decide(ctx, d); err != nil {
		return outcomeNone, err
	}
	return outcomeDecided, nil
}

func (p *Processor) decide(ctx context.Context, d *models.Deposit) error {
	decided, err := p.service.Decide(ctx, d)
	if err != nil {
		return fmt.Errorf("risk decision failed: %w", err)
	}
	zap.L().Debug("Deposit decided",
		zap.String("deposit_id", decided.Id),
		zap.String("status", string(decided.Status)),
		zap.Float64("risk_score", decided.RiskScore))
	if decided.Status == models.StatusApproved {
		p.ensurePosted(ctx, decided)
	}
	return nil
}

// handleApproved makes sure the credit is in the ledger and releases the hold
// once the estimated availability has passed. A credit that keeps failing to
// post fails the deposit after maxAttempts passes.
func (p *Processor) handleApproved(ctx context.Context, d *models.Deposit) (outcome, error) {
	if !p.ensurePosted(ctx, d) {
		if p.recordFailure(d.Id) >= p.maxAttempts {
			return p.fail(ctx, d, "Funds could not be posted")
		}
		return outcomeNone, nil
	}

	if d.EstimatedAvailability != nil && p.now().Before(*d.EstimatedAvailability) {
		return outcomeNone, nil
	}

	// The credit is already in the ledger, so release failures are retried
	// on every pass rather than failing the deposit.
	if _, err := p.service.ReleaseFunds(ctx, d); err != nil {
		return outcomeNone, err
	}
	p.forget(d.Id)
	return outcomeReleased, nil
}

func (p *Processor) ensurePosted(ctx context.Context, d *models.Deposit) bool {
	if p.isPosted(d.Id) {
		return true
	}
	if err := p.service.PostCredit(ctx, d); err != nil {
		zap.L().Warn("Credit posting failed",
			zap.String("deposit_id", d.Id),
			zap.Error(err))
		return false
	}
	p.markPosted(d.Id)
	return true
}

func (p *Processor) fail(ctx context.Context, d *models.Deposit, reason string) (outcome, error) {
	zap.L().Error("Giving up on deposit",
		zap.String("deposit_id", d.Id),
		zap.Int("attempts", p.maxAttempts),
		zap.String("reason", reason))
	if _, err := p.service.Transition(ctx, d, models.StatusFailed, reason, nil, nil); err != nil {
		return outcomeNone, fmt.Errorf("failed to mark deposit failed: %w", err)
	}
	p.forget(d.Id)
	return outcomeFailed, nil
}
