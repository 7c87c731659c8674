package common

import (
	"context"
	"errors"
	"fmt"

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"go.uber.org/zap"
)

// AccountLister is the account lookup used by command-line utilities.
type AccountLister interface {
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	FindLinkedAccountByName(ctx context.Context, displayName string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// ResolveAccounts returns the account matching filter by id or linked display name,
// or every account when filter is empty.
func ResolveAccounts(ctx context.Context, db AccountLister, filter string) ([]models.Account, error) {
	if filter == "" {
		accounts, err := db.ListAccounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get accounts: %w", err)
		}
		zap.L().Info("Retrieved accounts", zap.Int("count", len(accounts)))
		return accounts, nil
	}

	account, err := db.GetAccount(ctx, filter)
	if errors.Is(err, store.ErrAccountNotFound) {
		account, err = db.FindLinkedAccountByName(ctx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("account %q not found: %w", filter, err)
	}
	return []models.Account{*account}, nil
}
