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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"cc-wager-escrow-go/internal/models"
)

func Load() (*models.Config, error) {
	var firstErr error
	duration := func(key string, defaultValue time.Duration) time.Duration {
		d, err := getEnvDuration(key, defaultValue)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return d
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "wagers.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: duration("DB_CONN_MAX_IDLE_TIME", 30*time.Second),
			PingTimeout:     duration("DB_PING_TIMEOUT", 5*time.Second),
			BusyTimeout:     duration("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		Listener: models.ListenerConfig{
			QueueSize:       getEnvInt("LISTENER_QUEUE_SIZE", 256),
			BackoffMin:      duration("LISTENER_BACKOFF_MIN", time.Second),
			BackoffMax:      duration("LISTENER_BACKOFF_MAX", 30*time.Second),
			HandlerRetries:  getEnvInt("LISTENER_HANDLER_RETRIES", 3),
			HandlerBackoff:  duration("LISTENER_HANDLER_BACKOFF", 500*time.Millisecond),
			CleanupInterval: duration("LISTENER_CLEANUP_INTERVAL", 15*time.Minute),
			DedupeWindow:    duration("LISTENER_DEDUPE_WINDOW", time.Hour),
		},
		Engine: models.EngineConfig{
			ChallengeTimeout:  duration("CHALLENGE_TIMEOUT", 2*time.Minute),
			InvitationTimeout: duration("INVITATION_TIMEOUT", 10*time.Second),
			FetchTimeout:      duration("FETCH_TIMEOUT", 10*time.Second),
			RewardsFile:       getEnvString("REWARDS_FILE", ""),
		},
		GameServer: models.GameServerConfig{
			BaseURL: getEnvString("GAME_SERVER_URL", "https://lichess.org"),
			Token:   getEnvString("GAME_SERVER_TOKEN", ""),
			Timeout: duration("GAME_SERVER_TIMEOUT", 30*time.Second),
		},
		Feed: models.FeedConfig{
			AMQPURL:  getEnvString("AMQP_URL", ""),
			Exchange: getEnvString("AMQP_EXCHANGE", "game.events"),
		},
		Audit: models.AuditConfig{
			CronSpec: getEnvString("AUDIT_CRON", "0 */15 * * * *"),
			Workers:  getEnvInt("AUDIT_WORKERS", 4),
		},
	}
	if firstErr != nil {
		return nil, firstErr
	}

	if cfg.Engine.ChallengeTimeout <= 0 {
		return nil, fmt.Errorf("CHALLENGE_TIMEOUT must be positive, got %s", cfg.Engine.ChallengeTimeout)
	}
	if cfg.Listener.BackoffMin > cfg.Listener.BackoffMax {
		return nil, fmt.Errorf("LISTENER_BACKOFF_MIN (%s) exceeds LISTENER_BACKOFF_MAX (%s)", cfg.Listener.BackoffMin, cfg.Listener.BackoffMax)
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
