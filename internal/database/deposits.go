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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"check-deposit-go/internal/lifecycle"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateDeposit stores a new deposit and its timeline. A second call for the
// same session returns the stored deposit with created=false.
func (s *Service) CreateDeposit(ctx context.Context, params store.CreateDepositParams) (*models.Deposit, bool, error) {
	d := params.Deposit

	existing, err := s.GetDepositBySession(ctx, d.SessionId)
	if err == nil {
		zap.L().Info("Deposit session already stored",
			zap.String("session_id", d.SessionId),
			zap.String("deposit_id", existing.Id))
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	sealed, err := s.sealExtracted(params.Extracted)
	if err != nil {
		return nil, false, err
	}
	extractedJSON, err := marshalNullable(sealed)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode extracted data: %w", err)
	}
	verdictJSON, err := marshalNullable(params.Verdict)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode verdict: %w", err)
	}

	routing, err := s.sealer.Seal(params.Key.RoutingNumber)
	if err != nil {
		return nil, false, fmt.Errorf("failed to seal routing number: %w", err)
	}
	checkAccount, err := s.sealer.Seal(params.Key.AccountNumber)
	if err != nil {
		return nil, false, fmt.Errorf("failed to seal account number: %w", err)
	}
	duplicateKey := s.duplicateFingerprint(params.Key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, queryInsertDeposit,
		d.Id, d.SessionId, d.UserId, d.AccountId, string(d.Status), d.Amount.String(), d.SubmittedAt.UTC(),
		nullTime(d.EstimatedAvailability), d.ConfirmationNumber, d.ImmediatelyAvailable.String(),
		d.RiskScore, d.OriginalDepositId, d.Version, d.UpdatedAt.UTC(),
		params.Memo, params.DeviceId, params.Override, routing, checkAccount,
		params.Key.CheckNumber, duplicateKey, params.FrontHash, params.BackHash, extractedJSON, verdictJSON)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			// Lost a race with a concurrent submit of the same session
			_ = tx.Rollback()
			existing, getErr := s.GetDepositBySession(ctx, d.SessionId)
			if getErr != nil {
				return nil, false, fmt.Errorf("%w: %s", store.ErrDuplicateSession, d.SessionId)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to insert deposit: %w", err)
	}

	if err := replaceSteps(ctx, tx, d.Id, d.ProcessingSteps); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit deposit: %w", err)
	}

	zap.L().Info("Deposit stored",
		zap.String("deposit_id", d.Id),
		zap.String("account_id", d.AccountId),
		zap.String("amount", d.Amount.String()),
		zap.String("status", string(d.Status)))

	created, err := s.GetDeposit(ctx, d.Id)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *Service) GetDeposit(ctx context.Context, depositId string) (*models.Deposit, error) {
	return getDeposit(ctx, s.db, queryGetDepositById, depositId)
}

func (s *Service) GetDepositBySession(ctx context.Context, sessionId string) (*models.Deposit, error) {
	return getDeposit(ctx, s.db, queryGetDepositBySession, sessionId)
}

// GetIntakeEvidence returns the OCR data and verdict submitted with a deposit
func (s *Service) GetIntakeEvidence(ctx context.Context, depositId string) (*store.IntakeEvidence, error) {
	var (
		ev                     store.IntakeEvidence
		extracted, verdictJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx, queryGetIntakeEvidence, depositId).
		Scan(&ev.Memo, &ev.DeviceId, &ev.Override, &extracted, &verdictJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, depositId)
		}
		return nil, fmt.Errorf("failed to get intake evidence: %w", err)
	}

	if extracted.Valid && extracted.String != "" {
		ev.Extracted = &models.ExtractedCheckData{}
		if err := json.Unmarshal([]byte(extracted.String), ev.Extracted); err != nil {
			return nil, fmt.Errorf("failed to decode extracted data: %w", err)
		}
		if err := s.openExtracted(ev.Extracted); err != nil {
			return nil, err
		}
	}
	if verdictJSON.Valid && verdictJSON.String != "" {
		ev.Verdict = &models.ValidationVerdict{}
		if err := json.Unmarshal([]byte(verdictJSON.String), ev.Verdict); err != nil {
			return nil, fmt.Errorf("failed to decode verdict: %w", err)
		}
	}
	return &ev, nil
}

func (s *Service) ListDepositsByStatus(ctx context.Context, status models.DepositStatus, limit int) ([]models.Deposit, error) {
	return s.listDeposits(ctx, queryListDepositsByStatus, string(status), limit)
}

func (s *Service) ListDepositsByAccount(ctx context.Context, accountId string, limit, offset int) ([]models.Deposit, error) {
	return s.listDeposits(ctx, queryListDepositsByAccount, accountId, limit, offset)
}

// TransitionDeposit moves a deposit through the lifecycle under optimistic locking.
func (s *Service) TransitionDeposit(ctx context.Context, params store.TransitionParams) (*models.Deposit, error) {
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := getDeposit(ctx, tx, queryGetDepositById, params.DepositId)
	if err != nil {
		return nil, err
	}
	if d.Version != params.ExpectedVersion {
		return nil, fmt.Errorf("deposit %s at version %d, expected %d - %w",
			d.Id, d.Version, params.ExpectedVersion, store.ErrConcurrentModification)
	}

	from := d.Status
	if err := lifecycle.Apply(d, params.To, params.Reason, at); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidTransition, err)
	}
	if h := params.Hold; h != nil {
		eta := h.EstimatedAvailability.UTC()
		d.HoldType = h.Type
		d.HoldReason = h.Reason
		d.ImmediatelyAvailable = h.ImmediatelyAvailable
		d.EstimatedAvailability = &eta
	}
	if params.RiskScore != nil {
		d.RiskScore = *params.RiskScore
	}

	result, err := tx.ExecContext(ctx, queryUpdateDeposit,
		string(d.Status), nullTime(d.EstimatedAvailability), nullTime(d.ActualAvailability),
		d.RejectionReason, d.HoldReason, string(d.HoldType), d.ImmediatelyAvailable.String(),
		d.RiskScore, at.UTC(), d.Id, params.ExpectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update deposit: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("deposit update failed - %w", store.ErrConcurrentModification)
	}

	if err := replaceSteps(ctx, tx, d.Id, d.ProcessingSteps); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	d.Version++

	zap.L().Info("Deposit transitioned",
		zap.String("deposit_id", d.Id),
		zap.String("from", string(from)),
		zap.String("to", string(d.Status)),
		zap.Int64("version", d.Version))
	return d, nil
}

// GetMostRecentDepositTime returns the latest submission time for startup recovery
func (s *Service) GetMostRecentDepositTime(ctx context.Context) (time.Time, error) {
	var timestampStr sql.NullString
	if err := s.db.QueryRowContext(ctx, queryGetMostRecentDepositTime).Scan(&timestampStr); err != nil {
		return time.Time{}, fmt.Errorf("failed to get most recent deposit time: %w", err)
	}

	if !timestampStr.Valid || timestampStr.String == "" {
		// No deposits yet, start from 2 hours ago
		return time.Now().Add(-2 * time.Hour), nil
	}
	return parseTimestamp(timestampStr.String)
}

func (s *Service) listDeposits(ctx context.Context, query string, args ...any) ([]models.Deposit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var deposits []models.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, *d)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during deposit row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating deposit rows: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close deposit rows: %w", err)
	}

	for i := range deposits {
		if err := loadSteps(ctx, s.db, &deposits[i]); err != nil {
			return nil, err
		}
	}
	return deposits, nil
}

func getDeposit(ctx context.Context, q querier, query, key string) (*models.Deposit, error) {
	d, err := scanDeposit(q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
		}
		return nil, err
	}
	if err := loadSteps(ctx, q, d); err != nil {
		return nil, err
	}
	return d, nil
}

func scanDeposit(row rowScanner) (*models.Deposit, error) {
	var (
		d                       models.Deposit
		status, holdType        string
		amountStr, immediateStr string
		estimated, actual       sql.NullTime
	)
	err := row.Scan(&d.Id, &d.SessionId, &d.UserId, &d.AccountId, &status, &amountStr, &d.SubmittedAt,
		&estimated, &actual, &d.ConfirmationNumber,
		&d.RejectionReason, &d.HoldReason, &holdType, &immediateStr,
		&d.RiskScore, &d.OriginalDepositId, &d.Version, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan deposit: %w", err)
	}

	d.Status = models.DepositStatus(status)
	d.HoldType = models.HoldType(holdType)
	if d.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if d.ImmediatelyAvailable, err = decimal.NewFromString(immediateStr); err != nil {
		return nil, fmt.Errorf("failed to parse immediately available '%s': %w", immediateStr, err)
	}
	if estimated.Valid {
		t := estimated.Time
		d.EstimatedAvailability = &t
	}
	if actual.Valid {
		t := actual.Time
		d.ActualAvailability = &t
	}
	d.SupportActions = lifecycle.AvailableActions(d.Status)
	return &d, nil
}

func loadSteps(ctx context.Context, q querier, d *models.Deposit) error {
	rows, err := q.QueryContext(ctx, queryGetSteps, d.Id)
	if err != nil {
		return fmt.Errorf("failed to load processing steps: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	d.ProcessingSteps = nil
	for rows.Next() {
		var step models.ProcessingStep
		var status string
		var ts, eta sql.NullTime
		if err := rows.Scan(&step.Name, &status, &ts, &eta); err != nil {
			return fmt.Errorf("failed to scan processing step: %w", err)
		}
		step.Status = models.StepStatus(status)
		if ts.Valid {
			t := ts.Time
			step.Timestamp = &t
		}
		if eta.Valid {
			t := eta.Time
			step.EstimatedAt = &t
		}
		d.ProcessingSteps = append(d.ProcessingSteps, step)
	}
	return rows.Err()
}

func replaceSteps(ctx context.Context, tx *sql.Tx, depositId string, steps []models.ProcessingStep) error {
	if _, err := tx.ExecContext(ctx, queryDeleteSteps, depositId); err != nil {
		return fmt.Errorf("failed to clear processing steps: %w", err)
	}
	for i, step := range steps {
		_, err := tx.ExecContext(ctx, queryInsertStep,
			depositId, i, step.Name, string(step.Status), nullTime(step.Timestamp), nullTime(step.EstimatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert processing step %q: %w", step.Name, err)
		}
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func marshalNullable(v any) (any, error) {
	switch x := v.(type) {
	case *models.ExtractedCheckData:
		if x == nil {
			return nil, nil
		}
	case *models.ValidationVerdict:
		if x == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
