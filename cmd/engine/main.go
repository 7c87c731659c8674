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
	"os"
	"os/signal"
	"syscall"
	"time"

	"cc-wager-escrow-go/internal/audit"
	"cc-wager-escrow-go/internal/common"
	"cc-wager-escrow-go/internal/config"
	"cc-wager-escrow-go/internal/feed"
	"cc-wager-escrow-go/internal/listener"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting CC wager engine")

	if cfg.Feed.AMQPURL == "" {
		zap.L().Fatal("AMQP_URL is required to receive game events")
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	restored, err := services.Engine.Restore(ctx)
	if err != nil {
		zap.L().Fatal("Failed to restore pending wagers", zap.Error(err))
	}

	eventFeed, err := feed.NewAMQPFeed(cfg.Feed.AMQPURL, cfg.Feed.Exchange)
	if err != nil {
		zap.L().Fatal("Failed to connect event feed", zap.Error(err))
	}
	defer eventFeed.Close()

	l := listener.NewReconciliationListener(listener.ReconciliationListenerConfig{
		Feed:            eventFeed,
		Handler:         services.Engine,
		Directory:       services.DbService,
		QueueSize:       cfg.Listener.QueueSize,
		BackoffMin:      cfg.Listener.BackoffMin,
		BackoffMax:      cfg.Listener.BackoffMax,
		HandlerRetries:  cfg.Listener.HandlerRetries,
		HandlerBackoff:  cfg.Listener.HandlerBackoff,
		CleanupInterval: cfg.Listener.CleanupInterval,
		DedupeWindow:    cfg.Listener.DedupeWindow,
	})
	if err := l.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start listener", zap.Error(err))
	}

	auditor := audit.NewAuditor(services.DbService, cfg.Audit.Workers)
	defer auditor.Stop()
	scheduler := audit.NewScheduler(auditor, time.Minute)
	if cfg.Audit.CronSpec != "" {
		if err := scheduler.Start(cfg.Audit.CronSpec); err != nil {
			zap.L().Fatal("Failed to schedule audit", zap.Error(err))
		}
	}

	zap.L().Info("Engine running",
		zap.Int("accounts", len(l.Accounts())),
		zap.Int("restored_wagers", restored),
		zap.String("exchange", cfg.Feed.Exchange),
		zap.String("audit_schedule", cfg.Audit.CronSpec))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping engine...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		l.Stop()
		<-scheduler.Stop().Done()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Engine stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
