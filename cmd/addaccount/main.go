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
	"strings"

	"cc-wager-escrow-go/internal/api"
	"cc-wager-escrow-go/internal/common"
	"cc-wager-escrow-go/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("display name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("display name must be at least 2 characters")
	}
	if strings.ContainsAny(name, " /\t") {
		return fmt.Errorf("display name cannot contain spaces or slashes: %q", name)
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "Display name on the game server (required)")
	idFlag := flag.String("id", "", "Account id (default: random UUID)")
	linkedFlag := flag.Bool("linked", true, "Follow this account's game events")
	grantFlag := flag.Int64("grant", 0, "Opening CC grant (optional)")
	flag.Parse()

	name := strings.TrimSpace(*nameFlag)
	if err := validateName(name); err != nil {
		zap.L().Fatal("Invalid account", zap.Error(err))
	}
	if *grantFlag < 0 {
		zap.L().Fatal("Opening grant cannot be negative", zap.Int64("grant", *grantFlag))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	accountId := *idFlag
	if accountId == "" {
		accountId = uuid.New().String()
	}

	zap.L().Info("Creating account",
		zap.String("id", accountId),
		zap.String("display_name", name),
		zap.Bool("linked", *linkedFlag))

	account, err := dbService.CreateAccount(ctx, accountId, name, *linkedFlag)
	if err != nil {
		zap.L().Fatal("Failed to create account", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("ACCOUNT READY", common.DefaultWidth)
	fmt.Printf("ID:      %s\n", account.Id)
	fmt.Printf("Name:    %s\n", account.DisplayName)
	fmt.Printf("Linked:  %t\n", account.Linked)

	if *grantFlag > 0 {
		result, err := api.NewLedgerService(dbService).Grant(ctx, account.Id, *grantFlag, "opening:"+account.Id)
		switch {
		case err != nil:
			zap.L().Error("Opening grant failed", zap.String("account_id", account.Id), zap.Error(err))
		case !result.Success:
			zap.L().Error("Opening grant rejected", zap.String("account_id", account.Id), zap.String("reason", result.Error))
		default:
			fmt.Printf("Balance: %s\n", common.FormatCC(result.NewBalance, false))
		}
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	if account.Linked {
		fmt.Println("Restart the engine (or add the account at runtime) to follow its game events")
	}
}
