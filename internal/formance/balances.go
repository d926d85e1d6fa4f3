package formance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"check-deposit-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetAccountBalance returns the posted and held amounts for a customer account.
// The balance is the sum of the available and held buckets.
func (s *Service) GetAccountBalance(ctx context.Context, accountId, currency string) (*models.AccountBalance, error) {
	zap.L().Debug("Getting account balance from Formance",
		zap.String("account_id", accountId), zap.String("currency", currency))

	available, err := s.getAccountVolumes(ctx, customerAccount(accountId, "available"))
	if err != nil {
		return nil, err
	}
	held, err := s.getAccountVolumes(ctx, customerAccount(accountId, "held"))
	if err != nil {
		return nil, err
	}

	fAsset := formanceAsset(currency)
	heldAmt := bigIntToDecimal(volumeBalance(held, fAsset), currency)
	availAmt := bigIntToDecimal(volumeBalance(available, fAsset), currency)

	return &models.AccountBalance{
		Id:        customerAccount(accountId, "available"),
		AccountId: accountId,
		Currency:  currency,
		Balance:   availAmt.Add(heldAmt),
		Held:      heldAmt,
		UpdatedAt: s.getAccountUpdatedAt(ctx, customerAccount(accountId, "available")),
	}, nil
}

// GetAllAccountBalances returns every non-zero currency balance of a customer account.
func (s *Service) GetAllAccountBalances(ctx context.Context, accountId string) ([]models.AccountBalance, error) {
	zap.L().Debug("Getting all account balances from Formance", zap.String("account_id", accountId))

	available, err := s.getAccountVolumes(ctx, customerAccount(accountId, "available"))
	if err != nil {
		return nil, err
	}
	held, err := s.getAccountVolumes(ctx, customerAccount(accountId, "held"))
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for fAsset := range available {
		seen[fAsset] = true
	}
	for fAsset := range held {
		seen[fAsset] = true
	}

	updatedAt := s.getAccountUpdatedAt(ctx, customerAccount(accountId, "available"))
	var balances []models.AccountBalance
	for fAsset := range seen {
		currency := assetSymbol(fAsset)
		heldAmt := bigIntToDecimal(volumeBalance(held, fAsset), currency)
		total := bigIntToDecimal(volumeBalance(available, fAsset), currency).Add(heldAmt)
		if total.IsZero() && heldAmt.IsZero() {
			continue
		}
		balances = append(balances, models.AccountBalance{
			Id:        customerAccount(accountId, "available"),
			AccountId: accountId,
			Currency:  currency,
			Balance:   total,
			Held:      heldAmt,
			UpdatedAt: updatedAt,
		})
	}
	return balances, nil
}

// ---------- helpers ----------

// getAccountVolumes fetches volumes for a single account. A missing account has no volumes.
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		zap.L().Warn("Failed to get account volumes", zap.String("address", address), zap.Error(err))
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// getAccountUpdatedAt returns the last updated timestamp for an account.
func (s *Service) getAccountUpdatedAt(ctx context.Context, address string) time.Time {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
	})
	if err != nil {
		return time.Now()
	}
	if t := resp.V2AccountResponse.Data.UpdatedAt; t != nil {
		return *t
	}
	if t := resp.V2AccountResponse.Data.FirstUsage; t != nil {
		return *t
	}
	return time.Now()
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in minor units to a decimal amount.
func bigIntToDecimal(raw *big.Int, currency string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(currency)))
}

// assetSymbol extracts the currency from a Formance asset like "USD/2".
func assetSymbol(fAsset string) string {
	for i, c := range fAsset {
		if c == '/' {
			return fAsset[:i]
		}
	}
	return fAsset
}
