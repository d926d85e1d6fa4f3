package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"check-deposit-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*SubledgerService, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	service := NewSubledgerService(db)

	// Use the actual schema initialization
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func credit(accountId, depositId string, amount, held decimal.Decimal) ProcessTransactionParams {
	return ProcessTransactionParams{
		AccountId:       accountId,
		Currency:        "USD",
		TransactionType: txTypeCheckCredit,
		Amount:          amount,
		HeldDelta:       held,
		DepositId:       depositId,
		ExternalTxId:    depositId + ":credit",
		Reference:       "check 1042",
	}
}

func TestProcessTransaction_CheckCredit(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.RequireFromString("1250.00")
	held := decimal.RequireFromString("1050.00")

	result, err := service.ProcessTransaction(ctx, credit("chk-1001", "dep-1", amount, held))
	if err != nil {
		t.Fatalf("ProcessTransaction failed: %v", err)
	}

	if result.AccountId != "chk-1001" {
		t.Errorf("Expected account chk-1001, got %s", result.AccountId)
	}
	if !result.Amount.Equal(amount) {
		t.Errorf("Expected amount %s, got %s", amount.String(), result.Amount.String())
	}
	if !result.BalanceAfter.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount.String(), result.BalanceAfter.String())
	}
	if !result.HeldDelta.Equal(held) {
		t.Errorf("Expected held delta %s, got %s", held.String(), result.HeldDelta.String())
	}

	balance, err := service.GetBalance(ctx, "chk-1001", "USD")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Available().Equal(decimal.RequireFromString("200")) {
		t.Errorf("Expected 200 available, got %s", balance.Available().String())
	}
}

func TestProcessTransaction_HoldRelease(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.NewFromInt(600)
	held := decimal.NewFromInt(400)

	if _, err := service.ProcessTransaction(ctx, credit("chk-1001", "dep-1", amount, held)); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	_, err := service.ProcessTransaction(ctx, ProcessTransactionParams{
		AccountId:       "chk-1001",
		Currency:        "USD",
		TransactionType: txTypeHoldRelease,
		HeldDelta:       held.Neg(),
		DepositId:       "dep-1",
		ExternalTxId:    "dep-1:release",
	})
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}

	balance, err := service.GetBalance(ctx, "chk-1001", "USD")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Balance.Equal(amount) || !balance.Held.IsZero() {
		t.Errorf("Expected balance 600 with nothing held, got %s held %s", balance.Balance.String(), balance.Held.String())
	}

	if err := service.ReconcileBalance(ctx, "chk-1001", "USD"); err != nil {
		t.Errorf("ReconcileBalance failed: %v", err)
	}
}

func TestProcessTransaction_DuplicateHandling(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	params := credit("chk-1001", "dep-1", decimal.NewFromInt(100), decimal.Zero)

	if _, err := service.ProcessTransaction(ctx, params); err != nil {
		t.Fatalf("First transaction failed: %v", err)
	}

	_, err := service.ProcessTransaction(ctx, params)
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}

	balance, err := service.GetBalance(ctx, "chk-1001", "USD")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100 after duplicate, got %s", balance.Balance.String())
	}
}

func TestProcessTransaction_HeldCannotExceedBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	_, err := service.ProcessTransaction(ctx, credit("chk-1001", "dep-1", decimal.NewFromInt(100), decimal.NewFromInt(150)))
	if err == nil {
		t.Fatal("Expected error when held exceeds balance")
	}

	history, err := service.GetTransactionHistory(ctx, "chk-1001", "USD", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected rolled back history, got %d rows", len(history))
	}
}

func TestGetTransactionHistory_Pagination(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	for _, id := range []string{"dep-1", "dep-2", "dep-3"} {
		if _, err := service.ProcessTransaction(ctx, credit("chk-1001", id, decimal.NewFromInt(10), decimal.Zero)); err != nil {
			t.Fatalf("credit %s failed: %v", id, err)
		}
	}

	page, err := service.GetTransactionHistory(ctx, "chk-1001", "USD", 2, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(page))
	}

	rest, err := service.GetTransactionHistory(ctx, "chk-1001", "USD", 2, 2)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("Expected 1 remaining row, got %d", len(rest))
	}
}
