package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// unmatchable stands in for an empty image hash so it never matches a stored one.
const unmatchable = "-"

// FindDuplicate returns a live deposit of the same check submitted since the
// given time, or nil when there is none.
func (s *Service) FindDuplicate(ctx context.Context, key store.DuplicateKey, since time.Time) (*models.Deposit, error) {
	if !key.Complete() {
		return nil, nil
	}
	return s.findOne(ctx, queryFindDuplicateKey, s.duplicateFingerprint(key), since.UTC())
}

// FindByImageHash returns a live deposit with an identical front or back image.
func (s *Service) FindByImageHash(ctx context.Context, frontHash, backHash string, since time.Time) (*models.Deposit, error) {
	if frontHash == "" && backHash == "" {
		return nil, nil
	}
	if frontHash == "" {
		frontHash = unmatchable
	}
	if backHash == "" {
		backHash = unmatchable
	}
	return s.findOne(ctx, queryFindImageHash, frontHash, backHash, since.UTC())
}

func (s *Service) findOne(ctx context.Context, query string, args ...any) (*models.Deposit, error) {
	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search duplicates: %w", err)
	}
	return s.GetDeposit(ctx, id)
}

// DuplicateKeysSince lists the check identities stored within the window, with
// the MICR fields decrypted.
func (s *Service) DuplicateKeysSince(ctx context.Context, since time.Time) ([]store.DuplicateKey, error) {
	rows, err := s.db.QueryContext(ctx, queryDuplicateKeysSince, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate keys: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var keys []store.DuplicateKey
	for rows.Next() {
		var key store.DuplicateKey
		var routing, checkAccount, amountStr string
		if err := rows.Scan(&routing, &checkAccount, &key.CheckNumber, &amountStr); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate key: %w", err)
		}
		if key.RoutingNumber, err = s.sealer.Open(routing); err != nil {
			return nil, fmt.Errorf("failed to open routing number: %w", err)
		}
		if key.AccountNumber, err = s.sealer.Open(checkAccount); err != nil {
			return nil, fmt.Errorf("failed to open account number: %w", err)
		}
		if key.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate keys: %w", err)
	}
	return keys, nil
}

// SumSubmittedSince totals the live deposits of an account since the given time.
func (s *Service) SumSubmittedSince(ctx context.Context, accountId string, since time.Time) (decimal.Decimal, error) {
	var totalStr string
	if err := s.db.QueryRowContext(ctx, querySumSubmittedSince, accountId, since.UTC()).Scan(&totalStr); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum deposits: %w", err)
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse deposit total '%s': %w", totalStr, err)
	}
	return total.Round(2), nil
}

// CountSuccessfulDeposits returns how many deposits reached the account and their total.
func (s *Service) CountSuccessfulDeposits(ctx context.Context, accountId string) (int, decimal.Decimal, error) {
	var count int
	var totalStr string
	if err := s.db.QueryRowContext(ctx, queryCountSuccessfulDeposits, accountId).Scan(&count, &totalStr); err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to count deposits: %w", err)
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to parse deposit total '%s': %w", totalStr, err)
	}
	return count, total.Round(2), nil
}
