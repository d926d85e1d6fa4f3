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
	"time"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/shopspring/decimal"
)

// AccountHistory summarizes an account's completed deposits.
type AccountHistory struct {
	SuccessfulDeposits int
	DepositedTotal     decimal.Decimal
}

// IsNew reports whether the account has never completed a deposit.
func (h AccountHistory) IsNew() bool {
	return h.SuccessfulDeposits == 0
}

// DefaultHoldPolicy returns the standard funds availability policy.
func DefaultHoldPolicy() models.HoldPolicyConfig {
	return models.HoldPolicyConfig{
		StandardImmediate:   decimal.NewFromInt(200),
		LargeDeposit:        decimal.NewFromInt(5000),
		HighRisk:            0.5,
		EstablishedDeposits: 10,
		EstablishedTotal:    decimal.NewFromInt(10000),
	}
}

// DetermineHold picks the hold applied when a deposit is approved at approvedAt.
// Rules are evaluated in order and the first match wins.
func DetermineHold(policy models.HoldPolicyConfig, amount decimal.Decimal, risk float64, history AccountHistory, approvedAt time.Time) store.HoldDecision {
	standard := decimal.Min(policy.StandardImmediate, amount)

	var (
		holdType  models.HoldType
		immediate decimal.Decimal
		reason    string
	)
	switch {
	case history.IsNew():
		holdType, immediate = models.HoldFiveDay, standard
		reason = "New account hold"
	case amount.GreaterThan(policy.LargeDeposit):
		holdType, immediate = models.HoldSevenDay, standard
		reason = "Large deposit hold"
	case risk > policy.HighRisk:
		holdType, immediate = models.HoldFiveDay, decimal.Zero
		reason = "Risk-based hold"
	case history.SuccessfulDeposits >= policy.EstablishedDeposits && history.DepositedTotal.GreaterThan(policy.EstablishedTotal):
		holdType, immediate = models.HoldNextDay, amount
		reason = "Established customer"
	default:
		holdType, immediate = models.HoldTwoDay, standard
		reason = "Standard hold"
	}

	return store.HoldDecision{
		Type:                  holdType,
		Reason:                reason,
		ImmediatelyAvailable:  immediate,
		EstimatedAvailability: AddBusinessDays(approvedAt, holdType.BusinessDays()),
	}
}

// AddBusinessDays moves t forward by n weekdays. Saturdays and Sundays are
// skipped; holidays are not modeled.
func AddBusinessDays(t time.Time, n int) time.Time {
	result := t
	for added := 0; added < n; {
		result = result.AddDate(0, 0, 1)
		if wd := result.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return result
}
