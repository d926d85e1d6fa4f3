package common

import (
	"context"
	"fmt"

	"check-deposit-go/internal/models"

	"go.uber.org/zap"
)

// AccountLister is the part of the deposit store the reports need.
type AccountLister interface {
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// InitializeAccounts retrieves accounts based on an optional id filter.
// If accountFilter is provided, returns that single account.
// If accountFilter is empty, returns all accounts.
func InitializeAccounts(ctx context.Context, accounts AccountLister, accountFilter string, logger *zap.Logger) ([]models.Account, error) {
	if accountFilter != "" {
		logger.Info("Looking up account", zap.String("account_id", accountFilter))
		account, err := accounts.GetAccount(ctx, accountFilter)
		if err != nil {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return []models.Account{*account}, nil
	}

	all, err := accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	logger.Info("Retrieved accounts", zap.Int("count", len(all)))
	return all, nil
}
