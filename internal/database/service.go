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
	"errors"
	"fmt"
	"time"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/sealer"
	"check-deposit-go/internal/store"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time checks: *Service backs both the deposit store and the SQLite funds ledger.
var (
	_ store.DepositStore = (*Service)(nil)
	_ store.FundsLedger  = (*Service)(nil)
)

type Service struct {
	db        *sql.DB
	subledger *SubledgerService
	sealer    *sealer.Sealer
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("database encryption key is required")
	}
	masterKey, err := sealer.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid database encryption key: %w", err)
	}
	fieldSealer, err := sealer.New(masterKey)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newService(db, fieldSealer)
	if err := service.initSchema(cfg.CreateDemoAccounts); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func newService(db *sql.DB, fieldSealer *sealer.Sealer) *Service {
	return &Service{db: db, subledger: NewSubledgerService(db), sealer: fieldSealer}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(createDemoAccounts bool) error {
	schema := `
	-- Accounts that may receive mobile check deposits
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		check_deposit_enabled BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id);

	-- Deposits created by successful submissions
	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		status TEXT NOT NULL,
		amount TEXT NOT NULL,
		submitted_at TIMESTAMP NOT NULL,
		estimated_availability TIMESTAMP,
		actual_availability TIMESTAMP,
		confirmation_number TEXT NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		hold_reason TEXT NOT NULL DEFAULT '',
		hold_type TEXT NOT NULL DEFAULT '',
		immediately_available TEXT NOT NULL DEFAULT '0',
		risk_score REAL NOT NULL DEFAULT 0,
		original_deposit_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		device_id TEXT NOT NULL DEFAULT '',
		override BOOLEAN NOT NULL DEFAULT 0,
		routing_number TEXT NOT NULL DEFAULT '',
		check_account_number TEXT NOT NULL DEFAULT '',
		check_number TEXT NOT NULL DEFAULT '',
		duplicate_key TEXT NOT NULL DEFAULT '',
		front_hash TEXT NOT NULL DEFAULT '',
		back_hash TEXT NOT NULL DEFAULT '',
		extracted_json TEXT,
		verdict_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_account_submitted ON deposits(account_id, submitted_at);
	CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status);
	CREATE INDEX IF NOT EXISTS idx_deposits_duplicate_key ON deposits(duplicate_key);
	CREATE INDEX IF NOT EXISTS idx_deposits_front_hash ON deposits(front_hash);
	CREATE INDEX IF NOT EXISTS idx_deposits_back_hash ON deposits(back_hash);

	-- Ordered processing timeline per deposit
	CREATE TABLE IF NOT EXISTS processing_steps (
		deposit_id TEXT NOT NULL REFERENCES deposits(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		timestamp TIMESTAMP,
		estimated_at TIMESTAMP,
		PRIMARY KEY (deposit_id, position)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.subledger.InitSchema(); err != nil {
		return fmt.Errorf("unable to initialize subledger schema: %w", err)
	}

	if !createDemoAccounts {
		zap.L().Info("Skipping demo account creation (CREATE_DEMO_ACCOUNTS=false)")
		return nil
	}

	accounts := []struct {
		id    string
		name  string
		email string
	}{
		{"chk-1001", "Alice Johnson", "alice.johnson@example.com"},
		{"chk-1002", "Bob Smith", "bob.smith@example.com"},
		{"sav-2001", "Carol Williams", "carol.williams@example.com"},
	}

	for _, account := range accounts {
		_, err := s.db.Exec(queryInsertAccount, account.id, uuid.New().String(), account.name, account.email)
		if err != nil {
			zap.L().Error("Failed to insert demo account", zap.String("name", account.name), zap.Error(err))
		} else {
			zap.L().Info("Demo account ready", zap.String("id", account.id), zap.String("name", account.name))
		}
	}

	return nil
}

// Funds ledger methods backed by the subledger

func (s *Service) PostDeposit(ctx context.Context, params store.PostingParams) error {
	_, err := s.subledger.ProcessTransaction(ctx, ProcessTransactionParams{
		AccountId:       params.AccountId,
		Currency:        params.Currency,
		TransactionType: txTypeCheckCredit,
		Amount:          params.Amount,
		HeldDelta:       params.Held,
		DepositId:       params.DepositId,
		ExternalTxId:    params.DepositId + ":credit",
		Reference:       params.Reference,
		At:              params.At,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			return nil
		}
		return fmt.Errorf("error posting check credit: %w", err)
	}

	zap.L().Info("Check credit posted",
		zap.String("deposit_id", params.DepositId),
		zap.String("account_id", params.AccountId),
		zap.String("amount", params.Amount.String()),
		zap.String("held", params.Held.String()))
	return nil
}

func (s *Service) ReleaseHold(ctx context.Context, params store.PostingParams) error {
	if !params.Held.IsPositive() {
		return nil
	}

	_, err := s.subledger.ProcessTransaction(ctx, ProcessTransactionParams{
		AccountId:       params.AccountId,
		Currency:        params.Currency,
		TransactionType: txTypeHoldRelease,
		HeldDelta:       params.Held.Neg(),
		DepositId:       params.DepositId,
		ExternalTxId:    params.DepositId + ":release",
		Reference:       params.Reference,
		At:              params.At,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			return nil
		}
		return fmt.Errorf("error releasing hold: %w", err)
	}

	zap.L().Info("Deposit hold released",
		zap.String("deposit_id", params.DepositId),
		zap.String("account_id", params.AccountId),
		zap.String("released", params.Held.String()))
	return nil
}

func (s *Service) GetAccountBalance(ctx context.Context, accountId, currency string) (*models.AccountBalance, error) {
	return s.subledger.GetBalance(ctx, accountId, currency)
}

func (s *Service) GetAllAccountBalances(ctx context.Context, accountId string) ([]models.AccountBalance, error) {
	return s.subledger.GetAllBalances(ctx, accountId)
}

func (s *Service) GetTransactionHistory(ctx context.Context, accountId, currency string, limit, offset int) ([]models.Transaction, error) {
	return s.subledger.GetTransactionHistory(ctx, accountId, currency, limit, offset)
}

func (s *Service) ReconcileAccountBalance(ctx context.Context, accountId, currency string) error {
	return s.subledger.ReconcileBalance(ctx, accountId, currency)
}

// parseTimestamp reads an aggregate timestamp, which SQLite returns as text.
func parseTimestamp(value string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", value)
}
