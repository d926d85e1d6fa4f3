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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/lifecycle"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IntakeRequest is one deposit submission as received by the backend.
type IntakeRequest struct {
	IdempotencyKey string
	Metadata       models.SubmissionMetadata
	Front          []byte
	Back           []byte
}

// IntakeResult is the stored deposit. Replayed is true when the session had
// already been submitted and nothing new was created.
type IntakeResult struct {
	Deposit  *models.Deposit
	Replayed bool
}

// Intake validates a submission and stores it as a SUBMITTED deposit.
func (s *DepositService) Intake(ctx context.Context, principal Principal, req IntakeRequest) (*IntakeResult, error) {
	result, err := s.intake(ctx, principal, req)
	switch {
	case err == nil && result.Replayed:
		s.metrics.RecordIntake("replayed")
	case err == nil:
		s.metrics.RecordIntake("created")
	default:
		var subErr *errs.SubmissionError
		if errors.As(err, &subErr) {
			s.metrics.RecordIntake(string(subErr.Reason))
		} else {
			s.metrics.RecordIntake(string(errs.ReasonServerError))
		}
	}
	return result, err
}

func (s *DepositService) intake(ctx context.Context, principal Principal, req IntakeRequest) (*IntakeResult, error) {
	m := req.Metadata

	if err := s.validate.Struct(m); err != nil {
		return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, "invalid deposit metadata: "+err.Error())
	}
	if !m.Amount.IsPositive() || !m.Amount.Equal(m.Amount.Round(2)) {
		return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, "Amount must be greater than zero with at most two decimal places")
	}
	if req.IdempotencyKey != "" && req.IdempotencyKey != m.SessionId {
		return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, "Idempotency-Key must match the session id")
	}
	if len(req.Front) == 0 {
		return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, "Front check image is required")
	}
	if len(req.Back) == 0 {
		return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, "Back check image is required")
	}
	if int64(len(req.Front)) > s.maxImageBytes || int64(len(req.Back)) > s.maxImageBytes {
		return nil, errs.NewSubmissionError(errs.ReasonPayloadTooLarge,
			fmt.Sprintf("Each check image must be at most %d bytes", s.maxImageBytes))
	}

	if err := s.checkEntitlement(ctx, principal, m.AccountId); err != nil {
		return nil, err
	}

	existing, err := s.store.GetDepositBySession(ctx, m.SessionId)
	if err == nil {
		if existing.AccountId != m.AccountId {
			return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, "Session was already used for another account")
		}
		zap.L().Info("Replaying deposit submission",
			zap.String("session_id", m.SessionId),
			zap.String("deposit_id", existing.Id))
		return &IntakeResult{Deposit: existing, Replayed: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if err := s.checkOverride(m); err != nil {
		return nil, err
	}
	if err := s.checkResubmission(ctx, principal, m.OriginalDepositId); err != nil {
		return nil, err
	}

	history, err := s.accountHistory(ctx, m.AccountId)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.checkLimits(ctx, m.AccountId, m.Amount, history, now); err != nil {
		return nil, err
	}

	frontHash, backHash := hashImage(req.Front), hashImage(req.Back)
	key := store.DuplicateKeyFrom(m.Extracted, m.Amount)
	if err := s.checkDuplicates(ctx, frontHash, backHash, key); err != nil {
		return nil, err
	}

	assessment, err := s.scorer.Score(ctx, ScoreInput{
		AccountId: m.AccountId,
		Amount:    m.Amount,
		Extracted: m.Extracted,
		Verdict:   m.Verdict,
		Override:  m.Override,
		History:   history,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score deposit: %w", err)
	}

	// Availability preview; the processor recomputes the hold on approval.
	preview := DetermineHold(s.hold, m.Amount, assessment.RiskScore, history, now)
	eta := preview.EstimatedAvailability

	deposit := models.Deposit{
		Id:                    uuid.NewString(),
		SessionId:             m.SessionId,
		UserId:                principal.UserId,
		AccountId:             m.AccountId,
		Status:                models.StatusSubmitted,
		Amount:                m.Amount,
		SubmittedAt:           now,
		EstimatedAvailability: &eta,
		ConfirmationNumber:    newConfirmationNumber(),
		RiskScore:             assessment.RiskScore,
		OriginalDepositId:     m.OriginalDepositId,
		ProcessingSteps:       lifecycle.DefaultSteps(now),
		SupportActions:        lifecycle.AvailableActions(models.StatusSubmitted),
		Version:               1,
		UpdatedAt:             now,
	}

	stored, created, err := s.store.CreateDeposit(ctx, store.CreateDepositParams{
		Deposit:   deposit,
		Memo:      m.Memo,
		DeviceId:  m.Device.DeviceId,
		Override:  m.Override,
		Extracted: m.Extracted,
		Verdict:   m.Verdict,
		FrontHash: frontHash,
		BackHash:  backHash,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store deposit: %w", err)
	}
	if !created {
		return &IntakeResult{Deposit: stored, Replayed: true}, nil
	}

	s.index.Add(key)
	s.publishStatus(ctx, stored, "", "Deposit received")

	zap.L().Info("Deposit accepted",
		zap.String("deposit_id", stored.Id),
		zap.String("account_id", stored.AccountId),
		zap.String("amount", stored.Amount.String()),
		zap.String("confirmation", stored.ConfirmationNumber),
		zap.Float64("risk_score", stored.RiskScore))

	return &IntakeResult{Deposit: stored}, nil
}

func (s *DepositService) checkEntitlement(ctx context.Context, principal Principal, accountId string) error {
	if !principal.CanAccess(accountId) {
		return errs.NewSubmissionError(errs.ReasonForbidden, "Account is not linked to this user")
	}
	account, err := s.store.GetAccount(ctx, accountId)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return errs.NewSubmissionError(errs.ReasonForbidden, "Account does not exist")
		}
		return fmt.Errorf("failed to load account: %w", err)
	}
	if !account.CheckDepositEnabled {
		return errs.NewSubmissionError(errs.ReasonForbidden, "Mobile check deposit is not enabled for this account")
	}
	return nil
}

// checkOverride accepts an override only when every validation error was
// overridable. A failing verdict without an override never gets through.
func (s *DepositService) checkOverride(m models.SubmissionMetadata) error {
	if m.Override {
		if m.Verdict == nil || !m.Verdict.CanOverride() {
			return errs.NewSubmissionError(errs.ReasonUnprocessable,
				"Override is only accepted for image quality and low confidence issues")
		}
		return nil
	}
	if m.Verdict != nil && !m.Verdict.IsValid {
		return errs.NewSubmissionError(errs.ReasonUnprocessable, "Validation errors must be resolved before submitting")
	}
	return nil
}

func (s *DepositService) checkResubmission(ctx context.Context, principal Principal, originalId string) error {
	if originalId == "" {
		return nil
	}
	original, err := s.store.GetDeposit(ctx, originalId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.NewSubmissionError(errs.ReasonUnprocessable, "Original deposit does not exist")
		}
		return fmt.Errorf("failed to load original deposit: %w", err)
	}
	if !principal.CanAccess(original.AccountId) {
		return errs.NewSubmissionError(errs.ReasonForbidden, "Original deposit belongs to another account")
	}
	if !lifecycle.CanResubmit(original.Status) {
		return errs.NewSubmissionError(errs.ReasonUnprocessable,
			fmt.Sprintf("Deposit in status %s cannot be resubmitted", original.Status))
	}
	return nil
}

// checkDuplicates looks for the same images first, then the same check by its
// MICR line and amount.
func (s *DepositService) checkDuplicates(ctx context.Context, frontHash, backHash string, key store.DuplicateKey) error {
	since := s.now().Add(-s.limits.DuplicateWindow)

	dup, err := s.store.FindByImageHash(ctx, frontHash, backHash, since)
	if err != nil {
		return fmt.Errorf("failed to check image hashes: %w", err)
	}
	if dup == nil {
		dup, err = s.findDuplicateByKey(ctx, key)
		if err != nil {
			return err
		}
	}
	if dup == nil {
		return nil
	}

	zap.L().Warn("Duplicate check detected",
		zap.String("existing_deposit_id", dup.Id),
		zap.String("account_id", dup.AccountId))
	return errs.NewSubmissionError(errs.ReasonDuplicate,
		fmt.Sprintf("This check was already deposited on %s (confirmation %s)",
			dup.SubmittedAt.Format("Jan 2, 2006"), dup.ConfirmationNumber))
}

func (s *DepositService) findDuplicateByKey(ctx context.Context, key store.DuplicateKey) (*models.Deposit, error) {
	if !s.index.MayContain(key) {
		return nil, nil
	}
	dup, err := s.store.FindDuplicate(ctx, key, s.now().Add(-s.limits.DuplicateWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate key: %w", err)
	}
	return dup, nil
}

func (s *DepositService) accountHistory(ctx context.Context, accountId string) (AccountHistory, error) {
	count, total, err := s.store.CountSuccessfulDeposits(ctx, accountId)
	if err != nil {
		return AccountHistory{}, fmt.Errorf("failed to load deposit history: %w", err)
	}
	return AccountHistory{SuccessfulDeposits: count, DepositedTotal: total}, nil
}

func hashImage(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newConfirmationNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "MCD-" + strings.ToUpper(id[:10])
}
