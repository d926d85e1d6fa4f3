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

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"go.uber.org/zap"
)

// Assess answers the client's validation request with the checks only the
// server can run: duplicate detection against stored deposits and fraud risk.
func (s *DepositService) Assess(ctx context.Context, principal Principal, req models.AssessmentRequest) (*models.Assessment, error) {
	var history AccountHistory
	if req.AccountId != "" {
		if !principal.CanAccess(req.AccountId) {
			return nil, errs.NewSubmissionError(errs.ReasonForbidden, "Account is not linked to this user")
		}
		h, err := s.accountHistory(ctx, req.AccountId)
		if err != nil {
			return nil, err
		}
		history = h
	}

	amount := req.DeclaredAmount
	if !amount.IsPositive() && req.Extracted.NumericAmount != nil {
		amount = *req.Extracted.NumericAmount
	}

	dup, err := s.findDuplicateByKey(ctx, store.DuplicateKeyFrom(&req.Extracted, amount))
	if err != nil {
		return nil, err
	}

	scored, err := s.scorer.Score(ctx, ScoreInput{
		AccountId: req.AccountId,
		Amount:    amount,
		Extracted: &req.Extracted,
		History:   history,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score check: %w", err)
	}

	assessment := &models.Assessment{
		DuplicateCheck: dup == nil,
		FraudCheck:     scored.RiskScore < s.highRisk,
		FraudConfirmed: scored.RiskScore >= s.rejectThreshold,
		RiskScore:      scored.RiskScore,
	}
	for _, reason := range scored.ReviewReasons {
		assessment.Warnings = append(assessment.Warnings, models.Issue{
			Check:      models.CheckFraud,
			Message:    reason,
			Suggestion: "Funds may take longer to become available.",
		})
	}

	zap.L().Debug("Check assessed",
		zap.String("account_id", req.AccountId),
		zap.Bool("duplicate", dup != nil),
		zap.Float64("risk_score", scored.RiskScore),
		zap.Strings("indicators", scored.Indicators))
	return assessment, nil
}
