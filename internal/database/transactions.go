package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProcessTransactionParams struct {
	AccountId       string
	Currency        string
	TransactionType string
	Amount          decimal.Decimal
	HeldDelta       decimal.Decimal
	DepositId       string
	ExternalTxId    string
	Reference       string
	At              time.Time
}

// ProcessTransaction atomically updates the balance and held amount and records the transaction
func (s *SubledgerService) ProcessTransaction(ctx context.Context, params ProcessTransactionParams) (*models.Transaction, error) {

	zap.L().Info("Processing transaction",
		zap.String("account_id", params.AccountId),
		zap.String("currency", params.Currency),
		zap.String("type", params.TransactionType),
		zap.String("amount", params.Amount.String()),
		zap.String("held_delta", params.HeldDelta.String()),
		zap.String("external_tx_id", params.ExternalTxId))

	// Check for duplicate external transaction Id
	if params.ExternalTxId != "" {
		var existingTxId string
		err := s.db.QueryRowContext(ctx, queryCheckDuplicateTransaction, params.ExternalTxId).Scan(&existingTxId)
		if err == nil {
			zap.L().Warn("Duplicate external transaction Id detected, skipping",
				zap.String("external_tx_id", params.ExternalTxId),
				zap.String("existing_internal_tx_id", existingTxId))
			return nil, fmt.Errorf("%w: external_transaction_id %s already exists", store.ErrDuplicateTransaction, params.ExternalTxId)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to check for duplicate transaction: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balanceId, currentBalanceStr, currentHeldStr string
	var version int64

	err = tx.QueryRowContext(ctx, queryGetAccountBalance, params.AccountId, params.Currency).
		Scan(&balanceId, &currentBalanceStr, &currentHeldStr, &version)

	currentBalance, currentHeld := decimal.Zero, decimal.Zero
	if errors.Is(err, sql.ErrNoRows) {
		balanceId = uuid.New().String()
		version = 1

		_, err = tx.ExecContext(ctx, queryInsertAccountBalance, balanceId, params.AccountId, params.Currency, "0", "0", 1)
		if err != nil {
			return nil, fmt.Errorf("failed to create account balance: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	} else {
		if currentBalance, err = decimal.NewFromString(currentBalanceStr); err != nil {
			return nil, fmt.Errorf("failed to parse current balance '%s': %w", currentBalanceStr, err)
		}
		if currentHeld, err = decimal.NewFromString(currentHeldStr); err != nil {
			return nil, fmt.Errorf("failed to parse current held '%s': %w", currentHeldStr, err)
		}
	}

	newBalance := currentBalance.Add(params.Amount)
	newHeld := currentHeld.Add(params.HeldDelta)
	if newHeld.IsNegative() || newHeld.GreaterThan(newBalance) {
		return nil, fmt.Errorf("held amount %s out of range for balance %s", newHeld.String(), newBalance.String())
	}

	transactionId := uuid.New().String()
	now := params.At
	if now.IsZero() {
		now = time.Now().UTC()
	}
	transaction := &models.Transaction{}

	var amountStr, balanceBeforeStr, balanceAfterStr, heldDeltaStr string
	err = tx.QueryRowContext(ctx, queryInsertTransaction,
		transactionId, params.AccountId, params.Currency, params.TransactionType,
		params.Amount.String(), currentBalance.String(), newBalance.String(), params.HeldDelta.String(),
		params.DepositId, params.ExternalTxId, params.Reference, "confirmed", now, now).
		Scan(&transaction.Id, &transaction.AccountId, &transaction.Currency, &transaction.TransactionType,
			&amountStr, &balanceBeforeStr, &balanceAfterStr, &heldDeltaStr,
			&transaction.DepositId, &transaction.ExternalTransactionId, &transaction.Reference,
			&transaction.Status, &transaction.CreatedAt, &transaction.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	if err := parseAmounts(transaction, amountStr, balanceBeforeStr, balanceAfterStr, heldDeltaStr); err != nil {
		return nil, err
	}

	// Update account balance (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance,
		newBalance.String(), newHeld.String(), transactionId, params.AccountId, params.Currency, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := s.addJournalEntries(ctx, tx, transaction); err != nil {
		return nil, fmt.Errorf("failed to add journal entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Transaction processed successfully",
		zap.String("transaction_id", transactionId),
		zap.String("account_id", params.AccountId),
		zap.String("currency", params.Currency),
		zap.String("old_balance", currentBalance.String()),
		zap.String("new_balance", newBalance.String()),
		zap.String("held", newHeld.String()))

	return transaction, nil
}

type journalEntry struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// addJournalEntries creates double-entry bookkeeping entries
func (s *SubledgerService) addJournalEntries(ctx context.Context, tx *sql.Tx, transaction *models.Transaction) error {
	customer := fmt.Sprintf("%s_%s", transaction.AccountId, transaction.Currency)

	var entries []journalEntry
	switch transaction.TransactionType {
	case txTypeCheckCredit:
		// Funds in clearing are owed to the customer, split into held and available
		available := transaction.Amount.Sub(transaction.HeldDelta)
		entries = append(entries, journalEntry{"checks_clearing", "clearing_" + transaction.Currency, transaction.Amount, decimal.Zero})
		if available.IsPositive() {
			entries = append(entries, journalEntry{"customer_available", customer, decimal.Zero, available})
		}
		if transaction.HeldDelta.IsPositive() {
			entries = append(entries, journalEntry{"customer_held", customer, decimal.Zero, transaction.HeldDelta})
		}

	case txTypeHoldRelease:
		released := transaction.HeldDelta.Neg()
		entries = append(entries,
			journalEntry{"customer_held", customer, released, decimal.Zero},
			journalEntry{"customer_available", customer, decimal.Zero, released})
	}

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), transaction.Id, entry.accountType, entry.accountId,
			entry.debitAmount.String(), entry.creditAmount.String())
		if err != nil {
			return err
		}
	}

	return nil
}

// GetTransactionHistory returns paginated transaction history for an account
func (s *SubledgerService) GetTransactionHistory(ctx context.Context, accountId, currency string, limit, offset int) ([]models.Transaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("account_id", accountId),
		zap.String("currency", currency),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, accountId, currency, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var amountStr, balanceBeforeStr, balanceAfterStr, heldDeltaStr string
		err := rows.Scan(&tx.Id, &tx.AccountId, &tx.Currency, &tx.TransactionType,
			&amountStr, &balanceBeforeStr, &balanceAfterStr, &heldDeltaStr,
			&tx.DepositId, &tx.ExternalTransactionId, &tx.Reference,
			&tx.Status, &tx.CreatedAt, &tx.ProcessedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if err := parseAmounts(&tx, amountStr, balanceBeforeStr, balanceAfterStr, heldDeltaStr); err != nil {
			return nil, err
		}

		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}

func parseAmounts(tx *models.Transaction, amount, before, after, held string) error {
	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("failed to parse amount '%s': %w", amount, err)
	}
	if tx.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return fmt.Errorf("failed to parse balance before '%s': %w", before, err)
	}
	if tx.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return fmt.Errorf("failed to parse balance after '%s': %w", after, err)
	}
	if tx.HeldDelta, err = decimal.NewFromString(held); err != nil {
		return fmt.Errorf("failed to parse held delta '%s': %w", held, err)
	}
	return nil
}
