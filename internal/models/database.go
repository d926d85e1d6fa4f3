package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer account that can receive check deposits
type Account struct {
	Id                  string    `db:"id"`
	UserId              string    `db:"user_id"`
	Name                string    `db:"name"`
	Email               string    `db:"email"`
	CheckDepositEnabled bool      `db:"check_deposit_enabled"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// AccountBalance represents current funds ledger state (hot data)
type AccountBalance struct {
	Id                string          `db:"id"`
	AccountId         string          `db:"account_id"`
	Currency          string          `db:"currency"`
	Balance           decimal.Decimal `db:"balance"`
	Held              decimal.Decimal `db:"held"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Available is the portion of the balance not under a deposit hold.
func (b AccountBalance) Available() decimal.Decimal {
	return b.Balance.Sub(b.Held)
}

// Transaction represents immutable funds ledger history (cold data)
type Transaction struct {
	Id                    string          `db:"id"`
	AccountId             string          `db:"account_id"`
	Currency              string          `db:"currency"`
	TransactionType       string          `db:"transaction_type"`
	Amount                decimal.Decimal `db:"amount"`
	BalanceBefore         decimal.Decimal `db:"balance_before"`
	BalanceAfter          decimal.Decimal `db:"balance_after"`
	HeldDelta             decimal.Decimal `db:"held_delta"`
	DepositId             string          `db:"deposit_id"`
	ExternalTransactionId string          `db:"external_transaction_id"`
	Reference             string          `db:"reference"`
	Status                string          `db:"status"`
	CreatedAt             time.Time       `db:"created_at"`
	ProcessedAt           time.Time       `db:"processed_at"`
}
