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

package api

import (
	"context"
	"fmt"
	"strconv"

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Backend is what the read projections and admin credits need from storage.
type Backend interface {
	store.LedgerStore
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	Ping(ctx context.Context) error
}

// LedgerService exposes balances, ledger pages and wager history
type LedgerService struct {
	db Backend
}

func NewLedgerService(db Backend) *LedgerService {
	return &LedgerService{
		db: db,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// parseCursor turns an opaque cursor into a sequence bound; empty means the first page.
func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return seq, nil
}

func nextCursor(count, limit int, lastSeq int64) string {
	if count < limit {
		return ""
	}
	return strconv.FormatInt(lastSeq, 10)
}
