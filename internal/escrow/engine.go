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

package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"go.uber.org/zap"
)

// Engine holds, releases and refunds stakes. Each public call is one ledger transaction.
type Engine struct {
	store store.LedgerStore
}

func NewEngine(ledger store.LedgerStore) *Engine {
	return &Engine{store: ledger}
}

// OpenParams describes a new wager. Holders are debited in order; the first becomes
// side A. White/Black are provisional until the game reveals colours.
type OpenParams struct {
	WagerId        string
	StakeCC        int64
	Terms          models.Terms
	WhiteAccountId string
	BlackAccountId string
	Holders        []string
	ExpiresAt      time.Time
}

// ResolveParams carries a game outcome into settlement.
type ResolveParams struct {
	WagerId         string
	ExternalGameId  string
	Settlement      models.Settlement
	WinnerAccountId string
	// Actual colours, when known. An empty side keeps whatever the wager already records.
	WhiteAccountId string
	BlackAccountId string
	// Ref overrides the idempotency ref; defaults to the external game id.
	Ref string
}

// OpenWager creates the wager row and holds every holder's stake atomically.
// If any hold fails no wager is left behind.
func (e *Engine) OpenWager(ctx context.Context, params OpenParams) (*models.Wager, error) {
	if params.StakeCC < 0 {
		return nil, fmt.Errorf("stake cannot be negative, got %d", params.StakeCC)
	}

	wager := &models.Wager{
		Id:             params.WagerId,
		StakeCC:        params.StakeCC,
		WhiteAccountId: params.WhiteAccountId,
		BlackAccountId: params.BlackAccountId,
		Terms:          params.Terms,
		State:          models.WagerPending,
		CreatedAt:      time.Now().UTC(),
		ExpiresAt:      params.ExpiresAt,
	}

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateWager(ctx, wager); err != nil {
			return err
		}
		for _, accountId := range params.Holders {
			if err := holdInTx(ctx, tx, wager.Id, accountId, params.StakeCC); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		zap.L().Warn("Failed to open wager",
			zap.Int64("stake", params.StakeCC),
			zap.Strings("holders", params.Holders),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Wager opened",
		zap.String("wager_id", wager.Id),
		zap.Int64("stake", wager.StakeCC),
		zap.Strings("holders", params.Holders))
	return wager, nil
}

// HoldStake debits amount from accountId into the wager's escrow.
// Holding twice for the same account and wager is a no-op.
func (e *Engine) HoldStake(ctx context.Context, wagerId, accountId string, amount int64) error {
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		wager, err := tx.GetWager(ctx, wagerId)
		if err != nil {
			return err
		}
		if wager.Terminal() {
			return fmt.Errorf("cannot hold stake on settled wager %s", wagerId)
		}
		return holdInTx(ctx, tx, wagerId, accountId, amount)
	})
	if err != nil {
		return fmt.Errorf("failed to hold stake: %w", err)
	}
	return nil
}

func holdInTx(ctx context.Context, tx store.Tx, wagerId, accountId string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("hold amount cannot be negative, got %d", amount)
	}
	if amount == 0 {
		return nil
	}

	balance, err := tx.GetBalance(ctx, accountId)
	if err != nil {
		return err
	}
	if balance < amount {
		return &store.InsufficientFundsError{AccountId: accountId, Balance: balance, Required: amount}
	}

	_, created, err := tx.Record(ctx, store.RecordParams{
		AccountId: accountId,
		Kind:      models.EntryStakeHold,
		Amount:    -amount,
		Ref:       wagerId,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	escrow, err := tx.GetEscrow(ctx, wagerId)
	if err != nil {
		return err
	}
	if escrow == nil {
		escrow = &models.Escrow{WagerId: wagerId, Status: models.EscrowHeld}
	}
	if escrow.Status != models.EscrowHeld {
		return fmt.Errorf("escrow for wager %s is already %s", wagerId, escrow.Status)
	}

	switch {
	case escrow.SideAAccountId == "" || escrow.SideAAccountId == accountId:
		escrow.SideAAccountId = accountId
		escrow.SideAHold += amount
	case escrow.SideBAccountId == "" || escrow.SideBAccountId == accountId:
		escrow.SideBAccountId = accountId
		escrow.SideBHold += amount
	default:
		return fmt.Errorf("escrow for wager %s already has two sides", wagerId)
	}

	if err := tx.SaveEscrow(ctx, escrow); err != nil {
		return err
	}

	zap.L().Info("Stake held",
		zap.String("wager_id", wagerId),
		zap.String("account_id", accountId),
		zap.Int64("amount", amount),
		zap.Int64("escrow_total", escrow.Total()))
	return nil
}

// Resolve settles the wager exactly once. A wager that is already settled is returned unchanged.
func (e *Engine) Resolve(ctx context.Context, params ResolveParams) (*models.Wager, error) {
	var result *models.Wager
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		wager, err := tx.GetWager(ctx, params.WagerId)
		if err != nil {
			return err
		}
		result, err = resolveInTx(ctx, tx, wager, params)
		return err
	})
	if err != nil {
		zap.L().Error("Failed to resolve wager",
			zap.String("wager_id", params.WagerId),
			zap.String("game_id", params.ExternalGameId),
			zap.String("settlement", string(params.Settlement)),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// Cancel aborts and refunds a wager that never left the pending state. It reports
// whether a cancellation happened; a linked or settled wager is left alone.
func (e *Engine) Cancel(ctx context.Context, wagerId, ref string) (bool, error) {
	cancelled := false
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		wager, err := tx.GetWager(ctx, wagerId)
		if err != nil {
			return err
		}
		if wager.State != models.WagerPending {
			zap.L().Debug("Wager no longer pending, skipping cancel",
				zap.String("wager_id", wagerId),
				zap.String("state", string(wager.State)))
			return nil
		}
		if _, err := resolveInTx(ctx, tx, wager, ResolveParams{
			WagerId:    wagerId,
			Settlement: models.SettlementAbort,
			Ref:        ref,
		}); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to cancel wager %s: %w", wagerId, err)
	}
	if cancelled {
		zap.L().Info("Wager cancelled and refunded", zap.String("wager_id", wagerId), zap.String("ref", ref))
	}
	return cancelled, nil
}

func resolveInTx(ctx context.Context, tx store.Tx, wager *models.Wager, params ResolveParams) (*models.Wager, error) {
	if wager.Terminal() {
		zap.L().Debug("Wager already settled, skipping",
			zap.String("wager_id", wager.Id),
			zap.String("settlement", string(wager.Settlement)))
		return wager, nil
	}

	ref := params.Ref
	if ref == "" {
		ref = params.ExternalGameId
	}
	if ref == "" {
		ref = wager.ExternalGameId
	}
	if ref == "" {
		return nil, fmt.Errorf("wager %s has no settlement ref", wager.Id)
	}

	if params.WhiteAccountId != "" || params.BlackAccountId != "" {
		white, black := correctColors(wager, params.WhiteAccountId, params.BlackAccountId)
		if white != wager.WhiteAccountId || black != wager.BlackAccountId {
			if err := tx.AssignColors(ctx, wager.Id, white, black); err != nil {
				return nil, err
			}
		}
	}

	escrow, err := tx.GetEscrow(ctx, wager.Id)
	if err != nil {
		return nil, err
	}

	winner := ""
	if params.Settlement == models.SettlementDecisive {
		winner = params.WinnerAccountId
	}

	if escrow != nil && escrow.Status == models.EscrowHeld {
		switch params.Settlement {
		case models.SettlementDraw, models.SettlementAbort:
			if err := refundAll(ctx, tx, escrow, ref); err != nil {
				return nil, err
			}
			escrow.Status = models.EscrowRefunded
		case models.SettlementDecisive:
			if err := payWinner(ctx, tx, escrow, winner, ref); err != nil {
				return nil, err
			}
			escrow.Status = models.EscrowResolved
		default:
			return nil, fmt.Errorf("unknown settlement %q", params.Settlement)
		}
		if err := tx.SaveEscrow(ctx, escrow); err != nil {
			return nil, err
		}
	}

	if err := tx.SettleWager(ctx, store.SettleParams{
		WagerId:         wager.Id,
		ExternalGameId:  params.ExternalGameId,
		Settlement:      params.Settlement,
		WinnerAccountId: winner,
		SettlementRef:   ref,
	}); err != nil {
		return nil, err
	}

	zap.L().Info("Wager settled",
		zap.String("wager_id", wager.Id),
		zap.String("settlement", string(params.Settlement)),
		zap.String("winner_account_id", winner),
		zap.String("ref", ref))

	return tx.GetWager(ctx, wager.Id)
}

func refundAll(ctx context.Context, tx store.Tx, escrow *models.Escrow, ref string) error {
	for _, side := range sides(escrow) {
		if side.hold <= 0 {
			continue
		}
		if _, _, err := tx.Record(ctx, store.RecordParams{
			AccountId: side.accountId,
			Kind:      models.EntryRefund,
			Amount:    side.hold,
			Ref:       ref,
		}); err != nil {
			return err
		}
	}
	return nil
}

// payWinner refunds the winner's own hold and transfers every other side's hold to the winner.
func payWinner(ctx context.Context, tx store.Tx, escrow *models.Escrow, winner, ref string) error {
	if winner == "" {
		return store.ErrWinnerRequired
	}
	escrowSides := sides(escrow)
	if len(escrowSides) == 2 && escrow.SideAAccountId != winner && escrow.SideBAccountId != winner {
		return fmt.Errorf("winner %s is not party to wager %s: %w", winner, escrow.WagerId, store.ErrWinnerRequired)
	}

	for _, side := range escrowSides {
		if side.accountId == winner {
			if side.hold <= 0 {
				continue
			}
			if _, _, err := tx.Record(ctx, store.RecordParams{
				AccountId: winner,
				Kind:      models.EntryRefund,
				Amount:    side.hold,
				Ref:       ref,
			}); err != nil {
				return err
			}
			continue
		}

		if side.hold > 0 {
			if _, _, err := tx.Record(ctx, store.RecordParams{
				AccountId: winner,
				Kind:      models.EntryGain,
				Amount:    side.hold,
				Ref:       ref,
			}); err != nil {
				return err
			}
		}
		if _, _, err := tx.Record(ctx, store.RecordParams{
			AccountId: side.accountId,
			Kind:      models.EntryStakeRelease,
			Amount:    0,
			Ref:       ref,
		}); err != nil {
			return err
		}
	}
	return nil
}

type side struct {
	accountId string
	hold      int64
}

func sides(escrow *models.Escrow) []side {
	var out []side
	if escrow.SideAAccountId != "" {
		out = append(out, side{accountId: escrow.SideAAccountId, hold: escrow.SideAHold})
	}
	if escrow.SideBAccountId != "" {
		out = append(out, side{accountId: escrow.SideBAccountId, hold: escrow.SideBHold})
	}
	return out
}

// correctColors places the observed colours on the wager. When only one side is
// observed, the other recorded participant takes the opposite colour.
func correctColors(wager *models.Wager, white, black string) (string, string) {
	if white != "" && black != "" {
		return white, black
	}
	known := white
	if known == "" {
		known = black
	}
	other := ""
	for _, id := range wager.Participants() {
		if id != known {
			other = id
			break
		}
	}
	if white != "" {
		return white, other
	}
	return other, black
}

// IsFundsError reports whether err is a hold rejection that left no state behind.
func IsFundsError(err error) bool {
	return errors.Is(err, store.ErrInsufficientFunds)
}
