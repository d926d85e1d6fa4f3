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

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultLimits returns the standard per-account deposit limits.
func DefaultLimits() models.LimitsConfig {
	return models.LimitsConfig{
		SingleCheck:     decimal.NewFromInt(2500),
		NewAccount:      decimal.NewFromInt(500),
		Daily:           decimal.NewFromInt(5000),
		Monthly:         decimal.NewFromInt(20000),
		DuplicateWindow: 180 * 24 * time.Hour,
	}
}

func withDefaultLimits(l models.LimitsConfig) models.LimitsConfig {
	def := DefaultLimits()
	if !l.SingleCheck.IsPositive() {
		l.SingleCheck = def.SingleCheck
	}
	if !l.NewAccount.IsPositive() {
		l.NewAccount = def.NewAccount
	}
	if !l.Daily.IsPositive() {
		l.Daily = def.Daily
	}
	if !l.Monthly.IsPositive() {
		l.Monthly = def.Monthly
	}
	if l.DuplicateWindow <= 0 {
		l.DuplicateWindow = def.DuplicateWindow
	}
	return l
}

// checkLimits enforces the single-check, first-deposit, daily and monthly
// limits for one account. Per-check limits are unprocessable; period limits
// are rate limits and report what is left.
func (s *DepositService) checkLimits(ctx context.Context, accountId string, amount decimal.Decimal, history AccountHistory, now time.Time) error {
	if amount.GreaterThan(s.limits.SingleCheck) {
		return errs.NewSubmissionError(errs.ReasonUnprocessable,
			fmt.Sprintf("Amount exceeds single check limit of $%s", s.limits.SingleCheck.StringFixed(2)))
	}
	if history.IsNew() && amount.GreaterThan(s.limits.NewAccount) {
		return errs.NewSubmissionError(errs.ReasonUnprocessable,
			fmt.Sprintf("First-time deposit limit is $%s", s.limits.NewAccount.StringFixed(2)))
	}

	now = now.UTC()
	periods := []struct {
		name  string
		since time.Time
		limit decimal.Decimal
	}{
		{"Daily", time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), s.limits.Daily},
		{"Monthly", time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), s.limits.Monthly},
	}
	for _, p := range periods {
		total, err := s.store.SumSubmittedSince(ctx, accountId, p.since)
		if err != nil {
			return fmt.Errorf("failed to sum %s deposits: %w", p.name, err)
		}
		if total.Add(amount).GreaterThan(p.limit) {
			remaining := decimal.Max(p.limit.Sub(total), decimal.Zero)
			zap.L().Info("Deposit limit exceeded",
				zap.String("account_id", accountId),
				zap.String("period", p.name),
				zap.String("total", total.String()),
				zap.String("amount", amount.String()))
			return errs.NewSubmissionError(errs.ReasonRateLimited,
				fmt.Sprintf("%s check deposit limit exceeded. Limit: $%s, Remaining: $%s",
					p.name, p.limit.StringFixed(2), remaining.StringFixed(2)))
		}
	}
	return nil
}
