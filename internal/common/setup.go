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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"cc-wager-escrow-go/internal/api"
	"cc-wager-escrow-go/internal/database"
	"cc-wager-escrow-go/internal/engine"
	"cc-wager-escrow-go/internal/gameserver"
	"cc-wager-escrow-go/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService     *database.Service
	GameServer    *gameserver.Service
	Engine        *engine.Service
	LedgerService *api.LedgerService
	Rewards       models.RewardTable
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	rewards, err := LoadRewardTable(cfg.Engine.RewardsFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Connecting to game server", zap.String("url", cfg.GameServer.BaseURL))
	gameServer, err := gameserver.NewService(cfg.GameServer, gameserver.StaticToken(cfg.GameServer.Token))
	if err != nil {
		dbService.Close()
		return nil, err
	}

	engineService := engine.NewService(dbService, dbService, gameServer, gameServer, engine.Config{
		ChallengeTimeout:  cfg.Engine.ChallengeTimeout,
		InvitationTimeout: cfg.Engine.InvitationTimeout,
		FetchTimeout:      cfg.Engine.FetchTimeout,
		Rewards:           rewards,
	})

	zap.L().Info("Wager engine ready",
		zap.Duration("challenge_timeout", cfg.Engine.ChallengeTimeout),
		zap.Int64("reward_win", rewards.Win),
		zap.Int64("reward_draw", rewards.Draw))

	return &Services{
		DbService:     dbService,
		GameServer:    gameServer,
		Engine:        engineService,
		LedgerService: api.NewLedgerService(dbService),
		Rewards:       rewards,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service without the game server
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Engine != nil {
		cs.Engine.Stop()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
