package api

import (
	"context"
	"fmt"

	"cc-wager-escrow-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetWagerHistory returns one page of wagers the account took part in, newest first
func (s *LedgerService) GetWagerHistory(ctx context.Context, accountId, cursor string, limit int) (*models.WagerPage, error) {
	if accountId == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	beforeSeq, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	wagers, err := s.db.GetWagerPage(ctx, accountId, beforeSeq, limit)
	if err != nil {
		zap.L().Error("Failed to get wager history",
			zap.String("account_id", accountId),
			zap.String("cursor", cursor),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve wager history")
	}

	page := &models.WagerPage{Wagers: make([]models.WagerRecord, len(wagers))}
	for i := range wagers {
		page.Wagers[i] = toRecord(&wagers[i], accountId)
	}
	if len(wagers) > 0 {
		page.NextCursor = nextCursor(len(wagers), limit, wagers[len(wagers)-1].Seq)
	}
	return page, nil
}

// GetAccountStats summarises every settled wager of an account
func (s *LedgerService) GetAccountStats(ctx context.Context, accountId string) (*models.AccountStats, error) {
	balance, err := s.GetBalance(ctx, accountId)
	if err != nil {
		return nil, err
	}
	stats := &models.AccountStats{AccountId: accountId, BalanceCC: balance}

	var beforeSeq int64
	for {
		wagers, err := s.db.GetWagerPage(ctx, accountId, beforeSeq, maxPageSize)
		if err != nil {
			zap.L().Error("Failed to load wagers for stats", zap.String("account_id", accountId), zap.Error(err))
			return nil, fmt.Errorf("failed to retrieve wager history")
		}
		for i := range wagers {
			if err := s.accumulate(ctx, stats, &wagers[i]); err != nil {
				return nil, err
			}
		}
		if len(wagers) < maxPageSize {
			break
		}
		beforeSeq = wagers[len(wagers)-1].Seq
	}

	if stats.Played > 0 {
		played := decimal.NewFromInt(int64(stats.Played))
		stats.WinRate = decimal.NewFromInt(int64(stats.Wins)).Div(played).Round(4)
		stats.AverageNet = decimal.NewFromInt(stats.NetCC).Div(played).Round(2)
	}
	return stats, nil
}

func (s *LedgerService) accumulate(ctx context.Context, stats *models.AccountStats, wager *models.Wager) error {
	if !wager.Terminal() {
		return nil
	}
	result := resultFor(wager, stats.AccountId)
	switch result {
	case models.ResultAbort:
		stats.Aborts++
		return nil
	case models.ResultIndeterminate:
		return nil
	}
	stats.Played++

	switch result {
	case models.ResultWin:
		stats.Wins++
	case models.ResultLoss:
		stats.Losses++
	case models.ResultDraw:
		stats.Draws++
	}

	if wager.StakeCC == 0 || result == models.ResultDraw {
		return nil
	}
	escrow, err := s.db.GetEscrow(ctx, wager.Id)
	if err != nil {
		return fmt.Errorf("failed to load escrow for %s: %w", wager.Id, err)
	}
	if escrow == nil {
		return nil
	}
	if result == models.ResultWin {
		stats.NetCC += escrow.Total() - escrow.HoldOf(stats.AccountId)
	} else {
		stats.NetCC -= escrow.HoldOf(stats.AccountId)
	}
	return nil
}

func toRecord(w *models.Wager, accountId string) models.WagerRecord {
	record := models.WagerRecord{
		Id:             w.Id,
		StakeCC:        w.StakeCC,
		ExternalGameId: w.ExternalGameId,
		State:          w.State,
		CreatedAt:      w.CreatedAt,
	}
	switch accountId {
	case w.WhiteAccountId:
		record.Color = models.White
		record.OpponentId = w.BlackAccountId
	case w.BlackAccountId:
		record.Color = models.Black
		record.OpponentId = w.WhiteAccountId
	}
	if w.Terminal() {
		record.Result = resultFor(w, accountId)
		settledAt := w.SettledAt
		record.SettledAt = &settledAt
	}
	return record
}

func resultFor(w *models.Wager, accountId string) models.Result {
	switch w.Settlement {
	case models.SettlementAbort:
		return models.ResultAbort
	case models.SettlementDraw:
		return models.ResultDraw
	case models.SettlementDecisive:
		switch w.WinnerAccountId {
		case "":
			// winner was never a linked account
			return models.ResultIndeterminate
		case accountId:
			return models.ResultWin
		}
		return models.ResultLoss
	}
	return models.ResultIndeterminate
}
