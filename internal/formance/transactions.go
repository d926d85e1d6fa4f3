package formance

import (
	"context"
	"fmt"
	"strings"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. All metadata is set inside the script via set_tx_meta()
// so the Formance transaction is fully self-describing.
// ---------------------------------------------------------------------------

// numscriptCheckCredit moves an approved check out of clearing, parking the
// held part in the customer's held bucket.
const numscriptCheckCredit = `vars {
  asset $asset
  number $amount
  number $held
  account $account_id
  string $deposit_id
  string $currency
  string $amount_human
}

send [$asset $amount] (
  source = @checks:clearing allowing unbounded overdraft
  destination = {
    max [$asset $held] to @customers:$account_id:held
    remaining to @customers:$account_id:available
  }
)

set_tx_meta("event_type", "check_credit")
set_tx_meta("deposit_id", $deposit_id)
set_tx_meta("currency", $currency)
set_tx_meta("amount_human", $amount_human)
`

// numscriptHoldRelease makes held funds available once the hold expires.
const numscriptHoldRelease = `vars {
  asset $asset
  number $held
  account $account_id
  string $deposit_id
  string $currency
  string $amount_human
}

send [$asset $held] (
  source = @customers:$account_id:held
  destination = @customers:$account_id:available
)

set_tx_meta("event_type", "hold_release")
set_tx_meta("deposit_id", $deposit_id)
set_tx_meta("currency", $currency)
set_tx_meta("amount_human", $amount_human)
`

// PostDeposit credits an approved check, split between held and available funds.
func (s *Service) PostDeposit(ctx context.Context, params store.PostingParams) error {
	vars := map[string]string{
		"asset":        formanceAsset(params.Currency),
		"amount":       smallestUnit(params.Amount, params.Currency),
		"held":         smallestUnit(params.Held, params.Currency),
		"account_id":   params.AccountId,
		"deposit_id":   params.DepositId,
		"currency":     params.Currency,
		"amount_human": params.Amount.StringFixed(int32(precisionFor(params.Currency))),
	}
	if err := s.post(ctx, params, params.DepositId+":credit", numscriptCheckCredit, vars); err != nil {
		return fmt.Errorf("error recording check credit: %w", err)
	}

	zap.L().Info("Check credit recorded in Formance",
		zap.String("deposit_id", params.DepositId),
		zap.String("account_id", params.AccountId),
		zap.String("amount", params.Amount.String()),
		zap.String("held", params.Held.String()))
	return nil
}

// ReleaseHold moves the held part of a deposit to the available bucket.
func (s *Service) ReleaseHold(ctx context.Context, params store.PostingParams) error {
	if !params.Held.IsPositive() {
		return nil
	}

	vars := map[string]string{
		"asset":        formanceAsset(params.Currency),
		"held":         smallestUnit(params.Held, params.Currency),
		"account_id":   params.AccountId,
		"deposit_id":   params.DepositId,
		"currency":     params.Currency,
		"amount_human": params.Held.StringFixed(int32(precisionFor(params.Currency))),
	}
	if err := s.post(ctx, params, params.DepositId+":release", numscriptHoldRelease, vars); err != nil {
		return fmt.Errorf("error releasing hold: %w", err)
	}

	zap.L().Info("Hold release recorded in Formance",
		zap.String("deposit_id", params.DepositId),
		zap.String("account_id", params.AccountId),
		zap.String("released", params.Held.String()))
	return nil
}

func (s *Service) post(ctx context.Context, params store.PostingParams, reference, script string, vars map[string]string) error {
	postTx := shared.V2PostTransaction{
		Reference: strPtr(reference),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
		Metadata: postingMetadata(ctx, params),
	}
	if !params.At.IsZero() {
		at := params.At
		postTx.Timestamp = &at
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return err
	}
	return nil
}

// postingMetadata attaches check details carried on the context.
func postingMetadata(ctx context.Context, params store.PostingParams) map[string]string {
	meta := map[string]string{}
	if params.Reference != "" {
		meta["reference"] = params.Reference
	}
	pc := models.GetPostingContext(ctx)
	if pc == nil {
		return meta
	}
	if pc.ConfirmationNumber != "" {
		meta["confirmation_number"] = pc.ConfirmationNumber
	}
	if pc.CheckNumber != "" {
		meta["check_number"] = pc.CheckNumber
	}
	if pc.RoutingNumber != "" {
		meta["routing_number"] = pc.RoutingNumber
	}
	if pc.HoldType != "" {
		meta["hold_type"] = string(pc.HoldType)
	}
	if pc.OriginalDepositId != "" {
		meta["original_deposit_id"] = pc.OriginalDepositId
	}
	meta["risk_score"] = fmt.Sprintf("%.3f", pc.RiskScore)
	return meta
}

// GetTransactionHistory lists the ledger movements touching a customer account.
func (s *Service) GetTransactionHistory(ctx context.Context, accountId, currency string, limit, offset int) ([]models.Transaction, error) {
	prefix := "customers:" + accountId + ":"
	pageSize := int64(limit + offset) // fetch enough to skip offset

	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$or": []any{
				map[string]any{"$match": map[string]any{"source": prefix}},
				map[string]any{"$match": map[string]any{"destination": prefix}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var result []models.Transaction
	skipped := 0
	for _, tx := range resp.V2TransactionsCursorResponse.Cursor.Data {
		if c := tx.Metadata["currency"]; c != "" && c != currency {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}

		// Balance moves only when funds leave clearing; a release shifts held funds.
		amt, held := decimal.Zero, decimal.Zero
		for _, p := range tx.Postings {
			if assetSymbol(p.Asset) != currency {
				continue
			}
			pAmt := bigIntToDecimal(p.Amount, currency)
			switch {
			case strings.HasPrefix(p.Source, "checks:") && strings.HasPrefix(p.Destination, prefix):
				amt = amt.Add(pAmt)
				if strings.HasSuffix(p.Destination, ":held") {
					held = held.Add(pAmt)
				}
			case strings.HasSuffix(p.Source, ":held") && strings.HasPrefix(p.Source, prefix):
				held = held.Sub(pAmt)
			}
		}

		ref := ""
		if tx.Reference != nil {
			ref = *tx.Reference
		}

		result = append(result, models.Transaction{
			Id:                    fmt.Sprintf("%d", tx.ID),
			AccountId:             accountId,
			Currency:              currency,
			TransactionType:       tx.Metadata["event_type"],
			Amount:                amt,
			HeldDelta:             held,
			DepositId:             tx.Metadata["deposit_id"],
			ExternalTransactionId: ref,
			Reference:             tx.Metadata["reference"],
			Status:                "confirmed",
			CreatedAt:             tx.Timestamp,
			ProcessedAt:           tx.Timestamp,
		})

		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// ReconcileAccountBalance is a no-op in Formance; balances are consistent by construction.
func (s *Service) ReconcileAccountBalance(ctx context.Context, accountId, currency string) error {
	zap.L().Info("Reconciliation is a no-op in Formance (consistent by construction)",
		zap.String("account_id", accountId), zap.String("currency", currency))
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// smallestUnit renders amount in minor units, e.g. 12.34 USD -> "1234".
func smallestUnit(amount decimal.Decimal, currency string) string {
	return amount.Shift(int32(precisionFor(currency))).BigInt().String()
}

func strPtr(s string) *string { return &s }
