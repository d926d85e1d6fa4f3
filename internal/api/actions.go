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
	"errors"
	"fmt"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/lifecycle"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"go.uber.org/zap"
)

// Cancel withdraws a deposit before processing starts.
func (s *DepositService) Cancel(ctx context.Context, principal Principal, depositId, reason string) (*models.Deposit, error) {
	d, err := s.Get(ctx, principal, depositId)
	if err != nil {
		return nil, err
	}
	if !lifecycle.CanCancel(d.Status) {
		return nil, &errs.PreconditionError{
			Op:        "cancel",
			DepositId: d.Id,
			Status:    d.Status,
			Reason:    "only deposits that have not started processing can be cancelled",
		}
	}
	if reason == "" {
		reason = "Cancelled by customer"
	}

	updated, err := s.Transition(ctx, d, models.StatusCancelled, reason, nil, nil)
	if err != nil {
		if errors.Is(err, store.ErrConcurrentModification) || errors.Is(err, store.ErrInvalidTransition) {
			// The processor picked it up first
			current, getErr := s.store.GetDeposit(ctx, depositId)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &errs.PreconditionError{Op: "cancel", DepositId: d.Id, Status: current.Status, Reason: "processing already started"}
		}
		return nil, err
	}
	return updated, nil
}

// Review records a manual decision on a deposit held for review.
func (s *DepositService) Review(ctx context.Context, principal Principal, depositId string, approve bool, reason string) (*models.Deposit, error) {
	if !principal.Reviewer {
		return nil, errs.NewSubmissionError(errs.ReasonForbidden, "Reviewer role required")
	}
	d, err := s.store.GetDeposit(ctx, depositId)
	if err != nil {
		return nil, err
	}
	if d.Status != models.StatusUnderReview {
		return nil, &errs.PreconditionError{
			Op:        "review",
			DepositId: d.Id,
			Status:    d.Status,
			Reason:    "deposit is not awaiting review",
		}
	}

	zap.L().Info("Manual review decision",
		zap.String("deposit_id", d.Id),
		zap.String("reviewer", principal.UserId),
		zap.Bool("approve", approve),
		zap.String("reason", reason))

	if approve {
		if reason == "" {
			reason = "Approved after review"
		}
		return s.Approve(ctx, d, reason)
	}
	return s.Transition(ctx, d, models.StatusRejected, reason, nil, nil)
}

// Approve applies the hold policy and moves the deposit to APPROVED. The credit
// is posted by the processor.
func (s *DepositService) Approve(ctx context.Context, d *models.Deposit, reason string) (*models.Deposit, error) {
	return s.approve(ctx, d, reason, d.RiskScore, nil)
}

func (s *DepositService) approve(ctx context.Context, d *models.Deposit, reason string, risk float64, rescored *float64) (*models.Deposit, error) {
	history, err := s.accountHistory(ctx, d.AccountId)
	if err != nil {
		return nil, err
	}
	hold := DetermineHold(s.hold, d.Amount, risk, history, s.now().UTC())
	if reason == "" {
		reason = hold.Reason
	}

	return s.Transition(ctx, d, models.StatusApproved, reason, &hold, rescored)
}

// PostCredit records the approved amount in the funds ledger with the held
// part kept unavailable. Repeating it for the same deposit is a no-op.
func (s *DepositService) PostCredit(ctx context.Context, d *models.Deposit) error {
	params := s.postingParams(d)
	params.Held = d.Amount.Sub(d.ImmediatelyAvailable)
	ctx = models.WithPostingContext(ctx, s.postingContext(ctx, d))
	if err := s.ledger.PostDeposit(ctx, params); err != nil {
		return fmt.Errorf("failed to post deposit %s: %w", d.Id, err)
	}
	return nil
}

// ReleaseFunds makes the held part available and completes the deposit.
func (s *DepositService) ReleaseFunds(ctx context.Context, d *models.Deposit) (*models.Deposit, error) {
	params := s.postingParams(d)
	params.Held = d.Amount.Sub(d.ImmediatelyAvailable)
	ctx = models.WithPostingContext(ctx, s.postingContext(ctx, d))
	if err := s.ledger.ReleaseHold(ctx, params); err != nil {
		return nil, fmt.Errorf("failed to release hold for %s: %w", d.Id, err)
	}
	return s.Transition(ctx, d, models.StatusDeposited, "Funds available", nil, nil)
}

func (s *DepositService) postingParams(d *models.Deposit) store.PostingParams {
	return store.PostingParams{
		DepositId: d.Id,
		AccountId: d.AccountId,
		Currency:  s.currency,
		Amount:    d.Amount,
		Reference: d.ConfirmationNumber,
		At:        s.now().UTC(),
	}
}

func (s *DepositService) postingContext(ctx context.Context, d *models.Deposit) *models.PostingContext {
	pc := &models.PostingContext{
		ConfirmationNumber: d.ConfirmationNumber,
		HoldType:           d.HoldType,
		RiskScore:          d.RiskScore,
		OriginalDepositId:  d.OriginalDepositId,
		EffectiveAt:        s.now().UTC(),
	}
	ev, err := s.store.GetIntakeEvidence(ctx, d.Id)
	if err != nil {
		zap.L().Debug("No intake evidence for posting", zap.String("deposit_id", d.Id), zap.Error(err))
		return pc
	}
	if x := ev.Extracted; x != nil {
		if x.CheckNumber != nil {
			pc.CheckNumber = *x.CheckNumber
		}
		if x.RoutingNumber != nil {
			pc.RoutingNumber = *x.RoutingNumber
		}
	}
	return pc
}
