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
	"strings"

	"check-deposit-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Evaluate rescores a stored deposit from the evidence submitted with it.
func (s *DepositService) Evaluate(ctx context.Context, d *models.Deposit) (FraudAssessment, error) {
	ev, err := s.store.GetIntakeEvidence(ctx, d.Id)
	if err != nil {
		return FraudAssessment{}, fmt.Errorf("failed to load intake evidence: %w", err)
	}
	history, err := s.accountHistory(ctx, d.AccountId)
	if err != nil {
		return FraudAssessment{}, err
	}
	return s.scorer.Score(ctx, ScoreInput{
		AccountId: d.AccountId,
		Amount:    d.Amount,
		Extracted: ev.Extracted,
		Verdict:   ev.Verdict,
		Override:  ev.Override,
		History:   history,
	})
}

// Decide routes a PROCESSING deposit. Low-risk deposits with nothing to review
// are approved directly, fraud-confirmed ones are rejected and everything else
// waits for a reviewer.
func (s *DepositService) Decide(ctx context.Context, d *models.Deposit) (*models.Deposit, error) {
	if d.Status != models.StatusProcessing {
		return nil, fmt.Errorf("deposit %s is %s, not %s", d.Id, d.Status, models.StatusProcessing)
	}

	a, err := s.Evaluate(ctx, d)
	if err != nil {
		return nil, err
	}
	risk := a.RiskScore

	switch {
	case risk >= s.rejectThreshold:
		s.raiseFraudAlert(ctx, d, a, true)
		return s.Transition(ctx, d, models.StatusRejected, "Check failed fraud screening", nil, &risk)

	case risk < s.reviewThreshold && len(a.ReviewReasons) == 0:
		return s.approve(ctx, d, "", risk, &risk)

	default:
		if risk >= s.highRisk {
			s.raiseFraudAlert(ctx, d, a, false)
		}
		reason := strings.Join(a.ReviewReasons, "; ")
		if reason == "" {
			reason = "Elevated risk score"
		}
		return s.Transition(ctx, d, models.StatusUnderReview, reason, nil, &risk)
	}
}

func (s *DepositService) raiseFraudAlert(ctx context.Context, d *models.Deposit, a FraudAssessment, rejected bool) {
	severity := "MEDIUM"
	if a.RiskScore >= s.rejectThreshold {
		severity = "HIGH"
	}
	alert := models.FraudAlertEvent{
		AlertId:    uuid.NewString(),
		DepositId:  d.Id,
		AccountId:  d.AccountId,
		UserId:     d.UserId,
		Amount:     d.Amount.StringFixed(2),
		RiskScore:  a.RiskScore,
		Severity:   severity,
		Indicators: a.Indicators,
		Rejected:   rejected,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.PublishFraudAlert(ctx, alert); err != nil {
		zap.L().Error("Failed to publish fraud alert",
			zap.String("deposit_id", d.Id),
			zap.Error(err))
	}
}
