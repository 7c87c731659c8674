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

func (t *txStore) CreateWager(ctx context.Context, wager *models.Wager) error {
	if wager.StakeCC < 0 {
		return fmt.Errorf("stake cannot be negative, got %d", wager.StakeCC)
	}
	if wager.Id == "" {
		wager.Id = uuid.New().String()
	}
	if wager.State == "" {
		wager.State = models.WagerPending
	}
	if wager.CreatedAt.IsZero() {
		wager.CreatedAt = time.Now().UTC()
	}

	err := t.q.QueryRowContext(ctx, queryInsertWager,
		wager.Id,
		wager.StakeCC,
		wager.WhiteAccountId,
		wager.BlackAccountId,
		nullString(wager.ExternalGameId),
		wager.Terms.TimeSeconds,
		wager.Terms.IncrementSeconds,
		wager.Terms.Rated,
		string(wager.State),
		toUnixNano(wager.CreatedAt),
		toUnixNano(wager.ExpiresAt),
	).Scan(&wager.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert wager: %w", err)
	}

	zap.L().Debug("Wager created",
		zap.String("wager_id", wager.Id),
		zap.Int64("stake", wager.StakeCC),
		zap.String("state", string(wager.State)))
	return nil
}

func (t *txStore) GetWager(ctx context.Context, wagerId string) (*models.Wager, error) {
	return getWager(ctx, t.q, queryGetWagerById, wagerId)
}

func (t *txStore) GetWagerByExternalId(ctx context.Context, externalGameId string) (*models.Wager, error) {
	return getWager(ctx, t.q, queryGetWagerByExternalId, externalGameId)
}

func (t *txStore) LinkWager(ctx context.Context, wagerId, externalGameId string) (bool, error) {
	return linkWager(ctx, t.q, wagerId, externalGameId)
}

func (t *txStore) AssignColors(ctx context.Context, wagerId, whiteAccountId, blackAccountId string) error {
	if _, err := t.q.ExecContext(ctx, queryAssignColors, whiteAccountId, blackAccountId, wagerId); err != nil {
		return fmt.Errorf("failed to assign colors: %w", err)
	}
	return nil
}

// SettleWager marks the wager terminal. A wager that is already settled is rejected.
func (t *txStore) SettleWager(ctx context.Context, params store.SettleParams) error {
	settledAt := params.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	result, err := t.q.ExecContext(ctx, querySettleWager,
		string(params.Settlement),
		params.WinnerAccountId,
		params.SettlementRef,
		toUnixNano(settledAt),
		nullString(params.ExternalGameId),
		params.WagerId)
	if err != nil {
		return fmt.Errorf("failed to settle wager: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wager %s not settleable - %w", params.WagerId, store.ErrConcurrentModification)
	}
	return nil
}

// GetEscrow returns nil without error when the wager has no escrow (unstaked wagers).
func (t *txStore) GetEscrow(ctx context.Context, wagerId string) (*models.Escrow, error) {
	return getEscrow(ctx, t.q, wagerId)
}

func (t *txStore) SaveEscrow(ctx context.Context, escrow *models.Escrow) error {
	escrow.UpdatedAt = time.Now().UTC()
	_, err := t.q.ExecContext(ctx, queryUpsertEscrow,
		escrow.WagerId,
		escrow.SideAAccountId,
		escrow.SideAHold,
		escrow.SideBAccountId,
		escrow.SideBHold,
		string(escrow.Status),
		toUnixNano(escrow.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save escrow: %w", err)
	}
	return nil
}

func (s *Service) GetWager(ctx context.Context, wagerId string) (*models.Wager, error) {
	return getWager(ctx, s.db, queryGetWagerById, wagerId)
}

func (s *Service) GetWagerByExternalId(ctx context.Context, externalGameId string) (*models.Wager, error) {
	return getWager(ctx, s.db, queryGetWagerByExternalId, externalGameId)
}

// LinkWager binds an external game id to a pending wager. Returns false if the wager
// was not pending (already linked, settled or missing).
func (s *Service) LinkWager(ctx context.Context, wagerId, externalGameId string) (bool, error) {
	return linkWager(ctx, s.db, wagerId, externalGameId)
}

func (s *Service) GetEscrow(ctx context.Context, wagerId string) (*models.Escrow, error) {
	return getEscrow(ctx, s.db, wagerId)
}

// GetWagerPage returns wagers where the account played either colour, newest first.
func (s *Service) GetWagerPage(ctx context.Context, accountId string, beforeSeq int64, limit int) ([]models.Wager, error) {
	rows, err := s.db.QueryContext(ctx, queryGetWagerPage, accountId, accountId, beforeSeq, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get wager page: %w", err)
	}
	return collectWagers(rows)
}

// ListPendingWagers returns every wager still holding stakes, oldest first
func (s *Service) ListPendingWagers(ctx context.Context) ([]models.Wager, error) {
	rows, err := s.db.QueryContext(ctx, queryGetPendingWagers)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending wagers: %w", err)
	}
	return collectWagers(rows)
}

func collectWagers(rows *sql.Rows) ([]models.Wager, error) {
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var wagers []models.Wager
	for rows.Next() {
		wager, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wager: %w", err)
		}
		wagers = append(wagers, *wager)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wager rows: %w", err)
	}
	return wagers, nil
}

// ListHeldEscrows returns every escrow that still earmarks funds.
func (s *Service) ListHeldEscrows(ctx context.Context) ([]models.Escrow, error) {
	rows, err := s.db.QueryContext(ctx, queryGetHeldEscrows)
	if err != nil {
		return nil, fmt.Errorf("failed to list held escrows: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var escrows []models.Escrow
	for rows.Next() {
		escrow, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escrow: %w", err)
		}
		escrows = append(escrows, *escrow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escrow rows: %w", err)
	}
	return escrows, nil
}

func getWager(ctx context.Context, q querier, query, key string) (*models.Wager, error) {
	wager, err := scanWager(q.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWagerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wager: %w", err)
	}
	return wager, nil
}

func linkWager(ctx context.Context, q querier, wagerId, externalGameId string) (bool, error) {
	if externalGameId == "" {
		return false, fmt.Errorf("external game id cannot be empty")
	}
	result, err := q.ExecContext(ctx, queryLinkWager, externalGameId, wagerId)
	if err != nil {
		return false, fmt.Errorf("failed to link wager: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		zap.L().Info("Wager linked to game",
			zap.String("wager_id", wagerId),
			zap.String("game_id", externalGameId))
	}
	return rowsAffected > 0, nil
}

func getEscrow(ctx context.Context, q querier, wagerId string) (*models.Escrow, error) {
	escrow, err := scanEscrow(q.QueryRowContext(ctx, queryGetEscrow, wagerId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow: %w", err)
	}
	return escrow, nil
}

func scanWager(row rowScanner) (*models.Wager, error) {
	var w models.Wager
	var externalGameId sql.NullString
	var state, settlement string
	var createdAt, expiresAt, settledAt int64
	err := row.Scan(
		&w.Seq,
		&w.Id,
		&w.StakeCC,
		&w.WhiteAccountId,
		&w.BlackAccountId,
		&externalGameId,
		&w.Terms.TimeSeconds,
		&w.Terms.IncrementSeconds,
		&w.Terms.Rated,
		&state,
		&settlement,
		&w.WinnerAccountId,
		&w.SettlementRef,
		&createdAt,
		&expiresAt,
		&settledAt,
	)
	if err != nil {
		return nil, err
	}
	w.ExternalGameId = externalGameId.String
	w.State = models.WagerState(state)
	w.Settlement = models.Settlement(settlement)
	w.CreatedAt = fromUnixNano(createdAt)
	w.ExpiresAt = fromUnixNano(expiresAt)
	w.SettledAt = fromUnixNano(settledAt)
	return &w, nil
}

func scanEscrow(row rowScanner) (*models.Escrow, error) {
	var e models.Escrow
	var status string
	var updatedAt int64
	if err := row.Scan(&e.WagerId, &e.SideAAccountId, &e.SideAHold, &e.SideBAccountId, &e.SideBHold,
		&status, &updatedAt); err != nil {
		return nil, err
	}
	e.Status = models.EscrowStatus(status)
	e.UpdatedAt = fromUnixNano(updatedAt)
	return &e, nil
}
