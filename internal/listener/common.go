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
	"fmt"
	"sync"
	"time"

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"go.uber.org/zap"
)

// Feed opens a per-account stream of game events. The channel closes when the
// underlying connection drops.
type Feed interface {
	Subscribe(ctx context.Context, accountId string) (<-chan models.GameEvent, error)
}

// Handler applies one event. Handlers must tolerate duplicates. A handler returns
// store.ErrOutcomeUndecided when the event was valid but settled nothing yet.
type Handler interface {
	HandleEvent(ctx context.Context, event models.GameEvent) error
}

// ReconciliationListenerConfig contains configuration for ReconciliationListener
type ReconciliationListenerConfig struct {
	Feed            Feed
	Handler         Handler
	Directory       store.Directory
	QueueSize       int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	HandlerRetries  int
	HandlerBackoff  time.Duration
	CleanupInterval time.Duration
	DedupeWindow    time.Duration
}

// ReconciliationListener runs one subscriber and one consumer per linked account,
// joined by a bounded queue.
type ReconciliationListener struct {
	feed      Feed
	handler   Handler
	directory store.Directory

	// State management for processed events
	processedEvents map[string]time.Time
	mutex           sync.RWMutex

	queueSize       int
	backoffMin      time.Duration
	backoffMax      time.Duration
	handlerRetries  int
	handlerBackoff  time.Duration
	cleanupInterval time.Duration
	dedupeWindow    time.Duration

	// Per-account workers
	accounts   map[string]context.CancelFunc
	accountsMu sync.Mutex
	runCtx     context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewReconciliationListener creates a new listener
func NewReconciliationListener(cfg ReconciliationListenerConfig) *ReconciliationListener {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	if cfg.HandlerRetries < 0 {
		cfg.HandlerRetries = 0
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 15 * time.Minute
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = time.Hour
	}

	return &ReconciliationListener{
		feed:            cfg.Feed,
		handler:         cfg.Handler,
		directory:       cfg.Directory,
		processedEvents: make(map[string]time.Time),
		queueSize:       cfg.QueueSize,
		backoffMin:      cfg.BackoffMin,
		backoffMax:      cfg.BackoffMax,
		handlerRetries:  cfg.HandlerRetries,
		handlerBackoff:  cfg.HandlerBackoff,
		cleanupInterval: cfg.CleanupInterval,
		dedupeWindow:    cfg.DedupeWindow,
		accounts:        make(map[string]context.CancelFunc),
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// LoadLinkedAccounts returns the accounts whose feeds should be followed.
func (l *ReconciliationListener) LoadLinkedAccounts(ctx context.Context) ([]models.Account, error) {
	if l.directory == nil {
		return nil, nil
	}
	accounts, err := l.directory.ListLinkedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	zap.L().Info("Loaded linked accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}

// isEventProcessed checks if we've already applied this event
func (l *ReconciliationListener) isEventProcessed(key string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	_, exists := l.processedEvents[key]
	return exists
}

// markEventProcessed marks an event as applied
func (l *ReconciliationListener) markEventProcessed(key string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.processedEvents[key] = time.Now()
}

// cleanupLoop periodically cleans old processed event keys
func (l *ReconciliationListener) cleanupLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupProcessedEvents()
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedEvents removes old entries from the processed events map
func (l *ReconciliationListener) cleanupProcessedEvents() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := time.Now().Add(-l.dedupeWindow)
	cleaned := 0

	for key, processedTime := range l.processedEvents {
		if processedTime.Before(cutoff) {
			delete(l.processedEvents, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed events",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(l.processedEvents)))
	}
}

// nextBackoff doubles the delay up to max.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
