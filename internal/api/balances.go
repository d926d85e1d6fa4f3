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

	"go.uber.org/zap"
)

// GetAccountBalances returns every funds-ledger balance of an account
func (s *DepositService) GetAccountBalances(ctx context.Context, principal Principal, accountId string) ([]models.AccountBalance, error) {
	if accountId == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	if !principal.CanAccess(accountId) {
		return nil, errs.NewSubmissionError(errs.ReasonForbidden, "Account is not linked to this user")
	}

	balances, err := s.ledger.GetAllAccountBalances(ctx, accountId)
	if err != nil {
		zap.L().Error("Failed to get account balances", zap.String("account_id", accountId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balances")
	}
	return balances, nil
}

// GetTransactionHistory returns paginated ledger movements for an account
func (s *DepositService) GetTransactionHistory(ctx context.Context, principal Principal, accountId string, limit, offset int) ([]models.Transaction, error) {
	if !principal.CanAccess(accountId) {
		return nil, errs.NewSubmissionError(errs.ReasonForbidden, "Account is not linked to this user")
	}
	limit, offset = clampPage(limit, offset)

	transactions, err := s.ledger.GetTransactionHistory(ctx, accountId, s.currency, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("account_id", accountId),
			zap.String("currency", s.currency),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history")
	}
	return transactions, nil
}

// ListDeposits returns an account's deposits, newest first
func (s *DepositService) ListDeposits(ctx context.Context, principal Principal, accountId string, limit, offset int) ([]models.Deposit, error) {
	if !principal.CanAccess(accountId) {
		return nil, errs.NewSubmissionError(errs.ReasonForbidden, "Account is not linked to this user")
	}
	limit, offset = clampPage(limit, offset)

	deposits, err := s.store.ListDepositsByAccount(ctx, accountId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to list deposits", zap.String("account_id", accountId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve deposits")
	}
	return deposits, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
