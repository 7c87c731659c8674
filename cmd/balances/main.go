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

	"cc-wager-escrow-go/internal/api"
	"cc-wager-escrow-go/internal/common"
	"cc-wager-escrow-go/internal/config"
	"cc-wager-escrow-go/internal/database"
	"cc-wager-escrow-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts   int
	fundedAccounts  int
	totalBalanceCC  int64
	entriesReported int
}

func printEntry(entry models.LedgerEntry, isLast bool) {
	symbol := common.BoxPrefix(isLast)

	fmt.Printf("%s %-14s %10s  -> %8d CC  (ref: %s, %s)\n",
		symbol,
		entry.Kind,
		common.FormatCC(entry.Amount, true),
		entry.BalanceAfter,
		common.FormatRef(entry.Ref, 12),
		common.FormatTime(entry.CreatedAt))
}

func printAccountHeader(account models.Account, balance *models.Balance, stats *models.AccountStats) {
	linked := "unlinked"
	if account.Linked {
		linked = "linked"
	}
	fmt.Printf("\n┌─ Account: %s (%s)\n", account.DisplayName, linked)
	fmt.Printf("│  ID: %s\n", account.Id)
	fmt.Printf("│  Balance: %s (v%d, updated %s)\n",
		common.FormatCC(balance.AmountCC, false), balance.Version, common.FormatTime(balance.UpdatedAt))
	fmt.Printf("│  Record: %d played, %d W / %d L / %d D, net %s, win rate %s\n",
		stats.Played, stats.Wins, stats.Losses, stats.Draws,
		common.FormatCC(stats.NetCC, true), stats.WinRate.StringFixed(2))
	common.PrintBoxSeparator(78)
}

func processAccount(ctx context.Context, account models.Account, db *database.Service, svc *api.LedgerService, entries int) (int64, int, error) {
	balance, err := db.GetBalanceRow(ctx, account.Id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get balance: %w", err)
	}

	stats, err := svc.GetAccountStats(ctx, account.Id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get stats: %w", err)
	}

	page, err := svc.GetLedger(ctx, account.Id, "", entries)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get ledger: %w", err)
	}

	printAccountHeader(account, balance, stats)
	for i, entry := range page.Entries {
		printEntry(entry, i == len(page.Entries)-1)
	}

	return balance.AmountCC, len(page.Entries), nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	accountFlag := flag.String("account", "", "Filter by account id or linked display name (optional)")
	entriesFlag := flag.Int("entries", 10, "Number of most recent ledger entries to show per account")
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

	accounts, err := common.ResolveAccounts(ctx, dbService, *accountFlag)
	if err != nil {
		logger.Fatal("Failed to resolve accounts", zap.Error(err))
	}

	svc := api.NewLedgerService(dbService)
	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, account := range accounts {
		stats.totalAccounts++

		balance, shown, err := processAccount(ctx, account, dbService, svc, *entriesFlag)
		if err != nil {
			logger.Error("Failed to process account",
				zap.String("account_id", account.Id),
				zap.String("display_name", account.DisplayName),
				zap.Error(err))
			continue
		}
		if balance > 0 {
			stats.fundedAccounts++
		}
		stats.totalBalanceCC += balance
		stats.entriesReported += shown
	}

	summary := fmt.Sprintf("SUMMARY: %d of %d accounts funded, %s in balances",
		stats.fundedAccounts, stats.totalAccounts, common.FormatCC(stats.totalBalanceCC, false))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts_queried", stats.totalAccounts),
		zap.Int("funded_accounts", stats.fundedAccounts),
		zap.Int("entries_reported", stats.entriesReported))
}
