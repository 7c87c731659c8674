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

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// txStore implements store.Tx over a single *sql.Tx
type txStore struct {
	q querier
}

// Record inserts the entry unless (account, kind, ref) already exists, and applies the
// balance delta in the same transaction. Debits are not checked here; callers authorise them.
func (t *txStore) Record(ctx context.Context, params store.RecordParams) (*models.LedgerEntry, bool, error) {
	if params.AccountId == "" {
		return nil, false, fmt.Errorf("ledger entry requires an account id")
	}
	if !params.Kind.Valid() {
		return nil, false, fmt.Errorf("invalid ledger entry kind %q", params.Kind)
	}
	if params.Ref == "" {
		return nil, false, fmt.Errorf("ledger entry requires a ref")
	}

	existing, err := scanEntry(t.q.QueryRowContext(ctx, queryGetEntryByKey, params.AccountId, string(params.Kind), params.Ref))
	if err == nil {
		zap.L().Debug("Ledger entry already recorded, skipping",
			zap.String("account_id", params.AccountId),
			zap.String("kind", string(params.Kind)),
			zap.String("ref", params.Ref),
			zap.String("entry_id", existing.Id))
		return existing, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to check for existing ledger entry: %w", err)
	}

	currentBalance, version, exists, err := getBalance(ctx, t.q, params.AccountId)
	if err != nil {
		return nil, false, err
	}
	newBalance := currentBalance + params.Amount
	now := time.Now().UTC()

	entry := &models.LedgerEntry{
		Id:           uuid.New().String(),
		AccountId:    params.AccountId,
		Kind:         params.Kind,
		Amount:       params.Amount,
		Ref:          params.Ref,
		BalanceAfter: newBalance,
		CreatedAt:    now,
	}

	err = t.q.QueryRowContext(ctx, queryInsertEntry,
		entry.Id, entry.AccountId, string(entry.Kind), entry.Amount, entry.Ref, entry.BalanceAfter, toUnixNano(now)).
		Scan(&entry.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race on the idempotency key; the winner's entry is authoritative.
		existing, err := scanEntry(t.q.QueryRowContext(ctx, queryGetEntryByKey, params.AccountId, string(params.Kind), params.Ref))
		if err != nil {
			return nil, false, fmt.Errorf("failed to load conflicting ledger entry: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if params.Amount != 0 {
		if err := t.applyBalance(ctx, params.AccountId, newBalance, version, exists, now); err != nil {
			return nil, false, err
		}
	}

	zap.L().Info("Ledger entry recorded",
		zap.String("entry_id", entry.Id),
		zap.String("account_id", entry.AccountId),
		zap.String("kind", string(entry.Kind)),
		zap.Int64("amount", entry.Amount),
		zap.String("ref", entry.Ref),
		zap.Int64("old_balance", currentBalance),
		zap.Int64("new_balance", newBalance))

	return entry, true, nil
}

func (t *txStore) applyBalance(ctx context.Context, accountId string, newBalance, version int64, exists bool, now time.Time) error {
	if !exists {
		if _, err := t.q.ExecContext(ctx, queryInsertBalance, accountId, newBalance, toUnixNano(now)); err != nil {
			return fmt.Errorf("failed to create balance: %w", err)
		}
		return nil
	}

	result, err := t.q.ExecContext(ctx, queryUpdateBalance, newBalance, toUnixNano(now), accountId, version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}
	return nil
}

func (t *txStore) GetBalance(ctx context.Context, accountId string) (int64, error) {
	amount, _, _, err := getBalance(ctx, t.q, accountId)
	return amount, err
}

// getBalance returns the balance, its version and whether a row exists. No row means zero.
func getBalance(ctx context.Context, q querier, accountId string) (int64, int64, bool, error) {
	var amount, version int64
	err := q.QueryRowContext(ctx, queryGetBalance, accountId).Scan(&amount, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to get balance: %w", err)
	}
	return amount, version, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var kind string
	var createdAt int64
	if err := row.Scan(&entry.Seq, &entry.Id, &entry.AccountId, &kind, &entry.Amount, &entry.Ref,
		&entry.BalanceAfter, &createdAt); err != nil {
		return nil, err
	}
	entry.Kind = models.EntryKind(kind)
	entry.CreatedAt = fromUnixNano(createdAt)
	return &entry, nil
}

// GetBalance returns the current balance for an account (O(1) lookup)
func (s *Service) GetBalance(ctx context.Context, accountId string) (int64, error) {
	zap.L().Debug("Getting balance", zap.String("account_id", accountId))

	amount, _, _, err := getBalance(ctx, s.db, accountId)
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("account_id", accountId), zap.Error(err))
		return 0, err
	}
	return amount, nil
}

// GetBalanceRow returns the full balance projection, or a zero balance if none exists yet.
func (s *Service) GetBalanceRow(ctx context.Context, accountId string) (*models.Balance, error) {
	var balance models.Balance
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, queryGetBalanceRow, accountId).
		Scan(&balance.AccountId, &balance.AmountCC, &balance.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Balance{AccountId: accountId}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance row: %w", err)
	}
	balance.UpdatedAt = fromUnixNano(updatedAt)
	return &balance, nil
}

// GetLedgerPage returns up to limit entries older than beforeSeq (0 = newest), newest first.
func (s *Service) GetLedgerPage(ctx context.Context, accountId string, beforeSeq int64, limit int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting ledger page",
		zap.String("account_id", accountId),
		zap.Int64("before_seq", beforeSeq),
		zap.Int("limit", limit))

	rows, err := s.db.QueryContext(ctx, queryGetLedgerPage, accountId, beforeSeq, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger page: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return entries, nil
}

// ReconcileBalance verifies that the current balance matches the sum of all ledger entries
func (s *Service) ReconcileBalance(ctx context.Context, accountId string) error {
	currentBalance, err := s.GetBalance(ctx, accountId)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	var calculated int64
	if err := s.db.QueryRowContext(ctx, queryReconcileBalance, accountId).Scan(&calculated); err != nil {
		return fmt.Errorf("failed to calculate balance from ledger: %w", err)
	}

	if currentBalance != calculated {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_id", accountId),
			zap.Int64("current_balance", currentBalance),
			zap.Int64("calculated_balance", calculated),
			zap.Int64("difference", currentBalance-calculated))
		return fmt.Errorf("balance mismatch: current=%d, calculated=%d", currentBalance, calculated)
	}

	zap.L().Debug("Balance reconciliation successful",
		zap.String("account_id", accountId),
		zap.Int64("balance", currentBalance))
	return nil
}

// SumEntriesByRef sums every entry of kind recorded against ref, across accounts.
func (s *Service) SumEntriesByRef(ctx context.Context, kind models.EntryKind, ref string) (int64, error) {
	var sum int64
	if err := s.db.QueryRowContext(ctx, querySumEntriesByRef, string(kind), ref).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum %s entries for %s: %w", kind, ref, err)
	}
	return sum, nil
}

// Totals returns the sum of all balances and the sum of all currently held escrow.
func (s *Service) Totals(ctx context.Context) (int64, int64, error) {
	var balances, held int64
	if err := s.db.QueryRowContext(ctx, querySumBalances).Scan(&balances); err != nil {
		return 0, 0, fmt.Errorf("failed to sum balances: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, querySumHeldEscrows).Scan(&held); err != nil {
		return 0, 0, fmt.Errorf("failed to sum held escrow: %w", err)
	}
	return balances, held, nil
}
