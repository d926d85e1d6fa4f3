package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetBalance returns the balance and held amount for an account in one currency
func (s *SubledgerService) GetBalance(ctx context.Context, accountId, currency string) (*models.AccountBalance, error) {
	zap.L().Debug("Getting balance", zap.String("account_id", accountId), zap.String("currency", currency))

	result := &models.AccountBalance{AccountId: accountId, Currency: currency}

	var balanceStr, heldStr string
	err := s.db.QueryRowContext(ctx, queryGetBalance, accountId, currency).Scan(&balanceStr, &heldStr)
	if errors.Is(err, sql.ErrNoRows) {
		// No balance record means zero balance
		return result, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("account_id", accountId), zap.String("currency", currency), zap.Error(err))
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	if result.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		zap.L().Error("Failed to parse balance", zap.String("balance_str", balanceStr), zap.Error(err))
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	if result.Held, err = decimal.NewFromString(heldStr); err != nil {
		return nil, fmt.Errorf("failed to parse held amount: %w", err)
	}

	zap.L().Debug("Retrieved balance",
		zap.String("account_id", accountId),
		zap.String("currency", currency),
		zap.String("balance", result.Balance.String()),
		zap.String("held", result.Held.String()))
	return result, nil
}

// GetAllBalances returns all non-zero balances for an account
func (s *SubledgerService) GetAllBalances(ctx context.Context, accountId string) ([]models.AccountBalance, error) {
	zap.L().Debug("Getting all balances", zap.String("account_id", accountId))

	rows, err := s.db.QueryContext(ctx, queryGetAllAccountBalances, accountId)
	if err != nil {
		zap.L().Error("Failed to get all balances", zap.String("account_id", accountId), zap.Error(err))
		return nil, fmt.Errorf("failed to get all balances: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var balances []models.AccountBalance
	for rows.Next() {
		var balance models.AccountBalance
		var balanceStr, heldStr string
		var lastTx sql.NullString
		err := rows.Scan(&balance.Id, &balance.AccountId, &balance.Currency, &balanceStr, &heldStr,
			&lastTx, &balance.Version, &balance.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balance.LastTransactionId = lastTx.String

		if balance.Balance, err = decimal.NewFromString(balanceStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
		}
		if balance.Held, err = decimal.NewFromString(heldStr); err != nil {
			return nil, fmt.Errorf("failed to parse held '%s': %w", heldStr, err)
		}

		balances = append(balances, balance)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during balance row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}

	zap.L().Debug("Retrieved all balances", zap.String("account_id", accountId), zap.Int("count", len(balances)))
	return balances, nil
}

// ReconcileBalance verifies that the current balance and held amount match the transaction history
func (s *SubledgerService) ReconcileBalance(ctx context.Context, accountId, currency string) error {
	zap.L().Info("Reconciling balance", zap.String("account_id", accountId), zap.String("currency", currency))

	current, err := s.GetBalance(ctx, accountId, currency)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	var calculatedBalanceStr, calculatedHeldStr string
	err = s.db.QueryRowContext(ctx, queryReconcileBalance, accountId, currency).Scan(&calculatedBalanceStr, &calculatedHeldStr)
	if err != nil {
		return fmt.Errorf("failed to calculate balance from transactions: %w", err)
	}

	calculatedBalance, err := decimal.NewFromString(calculatedBalanceStr)
	if err != nil {
		return fmt.Errorf("failed to parse calculated balance '%s': %w", calculatedBalanceStr, err)
	}
	calculatedHeld, err := decimal.NewFromString(calculatedHeldStr)
	if err != nil {
		return fmt.Errorf("failed to parse calculated held '%s': %w", calculatedHeldStr, err)
	}

	if !current.Balance.Equal(calculatedBalance) || !current.Held.Equal(calculatedHeld) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_id", accountId),
			zap.String("currency", currency),
			zap.String("current_balance", current.Balance.String()),
			zap.String("calculated_balance", calculatedBalance.String()),
			zap.String("current_held", current.Held.String()),
			zap.String("calculated_held", calculatedHeld.String()))
		return fmt.Errorf("balance mismatch: current=%s/%s, calculated=%s/%s",
			current.Balance.String(), current.Held.String(), calculatedBalance.String(), calculatedHeld.String())
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("account_id", accountId),
		zap.String("currency", currency),
		zap.String("balance", current.Balance.String()),
		zap.String("held", current.Held.String()))
	return nil
}
