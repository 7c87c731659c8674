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
	"strings"
	"time"

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"go.uber.org/zap"
)

// CreateAccount registers an account. Re-creating an existing id is a no-op.
func (s *Service) CreateAccount(ctx context.Context, accountId, displayName string, linked bool) (*models.Account, error) {
	accountId = strings.TrimSpace(accountId)
	displayName = strings.TrimSpace(displayName)
	if accountId == "" {
		return nil, fmt.Errorf("account id cannot be empty")
	}
	if displayName == "" {
		return nil, fmt.Errorf("display name cannot be empty")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, queryInsertAccount,
		accountId, displayName, strings.ToLower(displayName), linked, toUnixNano(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	account, err := s.GetAccount(ctx, accountId)
	if err != nil {
		// INSERT OR IGNORE swallowed a display name collision with another id
		return nil, fmt.Errorf("account %s not created (display name %q taken?): %w", accountId, displayName, err)
	}

	zap.L().Info("Account ready",
		zap.String("account_id", account.Id),
		zap.String("display_name", account.DisplayName),
		zap.Bool("linked", account.Linked))
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, accountId string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountById, accountId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// FindLinkedAccountByName matches display names case-insensitively.
func (s *Service) FindLinkedAccountByName(ctx context.Context, displayName string) (*models.Account, error) {
	name := strings.ToLower(strings.TrimSpace(displayName))
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetLinkedAccountByName, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by name: %w", err)
	}
	return account, nil
}

func (s *Service) ListLinkedAccounts(ctx context.Context) ([]models.Account, error) {
	return s.listAccounts(ctx, queryGetLinkedAccounts)
}

func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.listAccounts(ctx, queryGetAllAccounts)
}

// SetLinked toggles whether the account is linked to the game server.
func (s *Service) SetLinked(ctx context.Context, accountId string, linked bool) error {
	result, err := s.db.ExecContext(ctx, querySetAccountLinked, linked, accountId)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

func (s *Service) listAccounts(ctx context.Context, query string) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var createdAt int64
	if err := row.Scan(&account.Id, &account.DisplayName, &account.Linked, &createdAt); err != nil {
		return nil, err
	}
	account.CreatedAt = fromUnixNano(createdAt)
	return &account, nil
}
