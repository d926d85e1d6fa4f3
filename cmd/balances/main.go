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

package main

import (
	"context"
	"flag"
	"fmt"

	"check-deposit-go/internal/common"
	"check-deposit-go/internal/config"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts        int
	totalBalances        int
	accountsWithBalances int
	pendingDeposits      int
}

func printBalance(balance models.AccountBalance, isLast bool) {
	symbol := common.BoxPrefix(isLast)

	fmt.Printf("%s %-5s: %18s available, %14s held (v%d, last_tx: %s, updated: %s)\n",
		symbol,
		balance.Currency,
		balance.Balance.Sub(balance.Held).StringFixed(2),
		balance.Held.StringFixed(2),
		balance.Version,
		common.ShortId(balance.LastTransactionId),
		balance.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printBalances(balances []models.AccountBalance) {
	for i, balance := range balances {
		isLast := i == len(balances)-1
		printBalance(balance, isLast)
	}
}

func printAccountHeader(account models.Account, balanceCount, inFlight int) {
	fmt.Printf("\n┌─ Account: %s (%s)\n", account.Id, account.Name)
	fmt.Printf("│  Owner: %s <%s>\n", account.UserId, account.Email)
	fmt.Printf("│  Currencies: %d, deposits in flight: %d\n", balanceCount, inFlight)
	common.PrintBoxSeparator(78)
}

func inFlightDeposits(ctx context.Context, deposits store.DepositStore, accountId string) (int, error) {
	recent, err := deposits.ListDepositsByAccount(ctx, accountId, 100, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, d := range recent {
		switch d.Status {
		case models.StatusSubmitted, models.StatusProcessing, models.StatusUnderReview, models.StatusApproved:
			count++
		}
	}
	return count, nil
}

func processAccount(ctx context.Context, account models.Account, deposits store.DepositStore, ledger store.FundsLedger) (int, int, error) {
	balances, err := ledger.GetAllAccountBalances(ctx, account.Id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get balances: %w", err)
	}
	inFlight, err := inFlightDeposits(ctx, deposits, account.Id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list deposits: %w", err)
	}

	if len(balances) == 0 && inFlight == 0 {
		return 0, 0, nil
	}

	printAccountHeader(account, len(balances), inFlight)
	printBalances(balances)

	return len(balances), inFlight, nil
}

func processAccountsAndGenerateReport(ctx context.Context, accounts []models.Account, deposits store.DepositStore, ledger store.FundsLedger, logger *zap.Logger) balanceStats {
	stats := balanceStats{}

	for _, account := range accounts {
		stats.totalAccounts++

		balanceCount, inFlight, err := processAccount(ctx, account, deposits, ledger)
		if err != nil {
			logger.Error("Failed to process account",
				zap.String("account_id", account.Id),
				zap.String("account_name", account.Name),
				zap.Error(err))
			continue
		}

		if balanceCount > 0 {
			stats.accountsWithBalances++
			stats.totalBalances += balanceCount
		}
		stats.pendingDeposits += inFlight
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	accountFlag := flag.String("account", "", "Filter by specific account id (optional)")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	ledger, err := common.InitializeLedger(ctx, cfg, dbService)
	if err != nil {
		logger.Fatal("Failed to initialize funds ledger", zap.Error(err))
	}

	accounts, err := common.InitializeAccounts(ctx, dbService, *accountFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize accounts", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.WideWidth)

	stats := processAccountsAndGenerateReport(ctx, accounts, dbService, ledger, logger)

	summary := fmt.Sprintf("SUMMARY: %d accounts with balances (%d balances, %d deposits in flight across %d accounts queried)",
		stats.accountsWithBalances, stats.totalBalances, stats.pendingDeposits, stats.totalAccounts)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts_queried", stats.totalAccounts),
		zap.Int("accounts_with_balances", stats.accountsWithBalances),
		zap.Int("total_balances", stats.totalBalances),
		zap.Int("deposits_in_flight", stats.pendingDeposits))
}
