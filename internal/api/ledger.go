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
	"errors"
	"fmt"

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"go.uber.org/zap"
)

// GetBalance returns the current balance for an account
func (s *LedgerService) GetBalance(ctx context.Context, accountId string) (int64, error) {
	if accountId == "" {
		return 0, fmt.Errorf("account_id is required")
	}

	balance, err := s.db.GetBalance(ctx, accountId)
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("account_id", accountId), zap.Error(err))
		return 0, fmt.Errorf("failed to retrieve balance")
	}

	return balance, nil
}

// GetLedger returns one page of an account's ledger, newest first
func (s *LedgerService) GetLedger(ctx context.Context, accountId, cursor string, limit int) (*models.LedgerPage, error) {
	if accountId == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	beforeSeq, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	entries, err := s.db.GetLedgerPage(ctx, accountId, beforeSeq, limit)
	if err != nil {
		zap.L().Error("Failed to get ledger page",
			zap.String("account_id", accountId),
			zap.String("cursor", cursor),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve ledger")
	}

	page := &models.LedgerPage{Entries: entries}
	if page.Entries == nil {
		page.Entries = []models.LedgerEntry{}
	}
	if len(entries) > 0 {
		page.NextCursor = nextCursor(len(entries), limit, entries[len(entries)-1].Seq)
	}
	return page, nil
}

// Grant credits an account. ref makes the grant idempotent.
func (s *LedgerService) Grant(ctx context.Context, accountId string, amount int64, ref string) (*models.CreditResult, error) {
	return s.credit(ctx, store.RecordParams{AccountId: accountId, Kind: models.EntryGain, Amount: amount, Ref: ref})
}

// Spend debits an account without letting its balance go negative. ref makes the spend idempotent.
func (s *LedgerService) Spend(ctx context.Context, accountId string, amount int64, ref string) (*models.CreditResult, error) {
	return s.credit(ctx, store.RecordParams{AccountId: accountId, Kind: models.EntrySpend, Amount: -amount, Ref: ref})
}

func (s *LedgerService) credit(ctx context.Context, params store.RecordParams) (*models.CreditResult, error) {
	if params.AccountId == "" || params.Ref == "" || params.Amount == 0 ||
		(params.Kind == models.EntryGain && params.Amount < 0) ||
		(params.Kind == models.EntrySpend && params.Amount > 0) {
		zap.L().Error("Invalid credit parameters",
			zap.String("account_id", params.AccountId),
			zap.String("kind", string(params.Kind)),
			zap.Int64("amount", params.Amount),
			zap.String("ref", params.Ref))
		return &models.CreditResult{
			Success: false,
			Error:   "invalid credit parameters",
		}, nil
	}

	if _, err := s.db.GetAccount(ctx, params.AccountId); err != nil {
		return &models.CreditResult{
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	var entry *models.LedgerEntry
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		if params.Amount < 0 {
			balance, err := tx.GetBalance(ctx, params.AccountId)
			if err != nil {
				return err
			}
			if balance < -params.Amount {
				return &store.InsufficientFundsError{AccountId: params.AccountId, Balance: balance, Required: -params.Amount}
			}
		}
		var err error
		entry, _, err = tx.Record(ctx, params)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			zap.L().Info("Spend rejected",
				zap.String("account_id", params.AccountId),
				zap.Int64("amount", params.Amount),
				zap.Error(err))
		} else {
			zap.L().Error("Credit processing failed",
				zap.String("account_id", params.AccountId),
				zap.String("kind", string(params.Kind)),
				zap.Error(err))
		}
		return &models.CreditResult{
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	newBalance, err := s.db.GetBalance(ctx, params.AccountId)
	if err != nil {
		zap.L().Error("Balance lookup failed after credit",
			zap.String("account_id", params.AccountId),
			zap.Error(err))
		return &models.CreditResult{
			Success: false,
			Error:   "balance lookup failed after credit",
		}, nil
	}

	zap.L().Info("Credit processed",
		zap.String("account_id", params.AccountId),
		zap.String("kind", string(params.Kind)),
		zap.Int64("amount", params.Amount),
		zap.String("ref", params.Ref),
		zap.Int64("new_balance", newBalance))

	return &models.CreditResult{
		Success:    true,
		Entry:      entry,
		NewBalance: newBalance,
	}, nil
}
