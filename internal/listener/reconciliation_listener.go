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

package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"go.uber.org/zap"
)

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// Start follows every linked account and begins periodic cleanup.
func (l *ReconciliationListener) Start(ctx context.Context) error {
	zap.L().Info("Starting reconciliation listener")

	if l.feed == nil || l.handler == nil {
		return fmt.Errorf("listener requires a feed and a handler")
	}

	accounts, err := l.LoadLinkedAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		zap.L().Warn("No linked accounts to follow yet - accounts can be added at runtime")
	}

	l.accountsMu.Lock()
	l.runCtx, l.cancel = context.WithCancel(ctx)
	l.accountsMu.Unlock()

	for _, account := range accounts {
		l.AddAccount(account.Id)
	}

	go l.cleanupLoop(l.runCtx)

	zap.L().Info("Reconciliation listener started successfully",
		zap.Int("accounts", len(accounts)),
		zap.Int("queue_size", l.queueSize),
		zap.Duration("backoff_max", l.backoffMax))
	return nil
}

// Stop gracefully stops every account worker
func (l *ReconciliationListener) Stop() {
	zap.L().Info("Stopping reconciliation listener")
	close(l.stopChan)

	l.accountsMu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.accountsMu.Unlock()

	l.wg.Wait()
	<-l.doneChan
	zap.L().Info("Reconciliation listener stopped")
}

// AddAccount starts following accountId. Adding a followed account is a no-op.
func (l *ReconciliationListener) AddAccount(accountId string) bool {
	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	if l.runCtx == nil || l.runCtx.Err() != nil {
		return false
	}
	if _, running := l.accounts[accountId]; running {
		return false
	}

	accountCtx, cancel := context.WithCancel(l.runCtx)
	l.accounts[accountId] = cancel
	queue := make(chan models.GameEvent, l.queueSize)

	l.wg.Add(2)
	go l.subscribeLoop(accountCtx, accountId, queue)
	go l.consumeLoop(accountCtx, accountId, queue)

	zap.L().Info("Following account", zap.String("account_id", accountId))
	return true
}

// RemoveAccount stops following accountId.
func (l *ReconciliationListener) RemoveAccount(accountId string) {
	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	if cancel, ok := l.accounts[accountId]; ok {
		cancel()
		delete(l.accounts, accountId)
		zap.L().Info("Stopped following account", zap.String("account_id", accountId))
	}
}

// Accounts returns the ids currently followed.
func (l *ReconciliationListener) Accounts() []string {
	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	return ids
}

// subscribeLoop keeps a feed connection open for the account, reconnecting with
// exponential backoff, and pushes events into the bounded queue.
func (l *ReconciliationListener) subscribeLoop(ctx context.Context, accountId string, queue chan<- models.GameEvent) {
	defer l.wg.Done()
	defer close(queue)

	backoff := l.backoffMin
	for ctx.Err() == nil {
		events, err := l.feed.Subscribe(ctx, accountId)
		if err != nil {
			zap.L().Warn("Feed subscription failed, retrying",
				zap.String("account_id", accountId),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, l.backoffMax)
			continue
		}

		backoff = l.backoffMin
	receive:
		for {
			select {
			case event, ok := <-events:
				if !ok {
					break receive
				}
				if event.AccountId == "" {
					event.AccountId = accountId
				}
				select {
				case queue <- event:
				case <-ctx.Done():
					event.Acknowledge(false)
					return
				}
			case <-ctx.Done():
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		zap.L().Info("Feed connection closed, reconnecting",
			zap.String("account_id", accountId),
			zap.Duration("backoff", backoff))
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, l.backoffMax)
	}
}

// consumeLoop applies the account's events one at a time, in delivery order.
func (l *ReconciliationListener) consumeLoop(ctx context.Context, accountId string, queue <-chan models.GameEvent) {
	defer l.wg.Done()

	for event := range queue {
		if ctx.Err() != nil {
			event.Acknowledge(false)
			return
		}
		l.processEvent(ctx, event)
	}
}

// processEvent applies an event with bounded retries and reports the outcome to the
// feed. Only settled deliveries are remembered for duplicate suppression: a finish whose
// outcome is still undecided must stay processable when it is delivered again. An event
// that keeps failing is handed back for redelivery; every ledger write is keyed.
func (l *ReconciliationListener) processEvent(ctx context.Context, event models.GameEvent) {
	key := event.Key()
	if l.isEventProcessed(key) {
		event.Acknowledge(true)
		fmt.Printf("  %s= %s %s %s (duplicate)%s\n", colorGray, event.AccountId, event.Type, event.ExternalGameId, colorReset)
		return
	}

	var err error
	for attempt := 0; attempt <= l.handlerRetries; attempt++ {
		if attempt > 0 && !sleep(ctx, l.handlerBackoff*time.Duration(attempt)) {
			event.Acknowledge(false)
			return
		}
		err = l.handler.HandleEvent(ctx, event)
		if err == nil || errors.Is(err, store.ErrOutcomeUndecided) {
			break
		}
		zap.L().Warn("Event handler failed",
			zap.String("account_id", event.AccountId),
			zap.String("type", string(event.Type)),
			zap.String("game_id", event.ExternalGameId),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	switch {
	case errors.Is(err, store.ErrOutcomeUndecided):
		event.Acknowledge(true)
		fmt.Printf("  %s? %s %s %s (undecided)%s\n", colorYellow, event.AccountId, event.Type, event.ExternalGameId, colorReset)
		zap.L().Info("Outcome undecided, waiting for a better delivery",
			zap.String("account_id", event.AccountId),
			zap.String("game_id", event.ExternalGameId))
		return
	case err != nil:
		event.Acknowledge(false)
		fmt.Printf("  %s✗ %s %s %s | %s%s\n", colorRed, event.AccountId, event.Type, event.ExternalGameId, err, colorReset)
		zap.L().Error("Giving up on event, returning it to the feed",
			zap.String("account_id", event.AccountId),
			zap.String("type", string(event.Type)),
			zap.String("game_id", event.ExternalGameId),
			zap.Error(err))
		return
	}

	l.markEventProcessed(key)
	event.Acknowledge(true)
	color := colorGreen
	if event.Type != models.EventFinish {
		color = colorYellow
	}
	fmt.Printf("  %s✓ %s %s %s%s\n", color, event.AccountId, event.Type, event.ExternalGameId, colorReset)
}
