package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cc-wager-escrow-go/internal/models"
)

// Sentinel errors shared across the engine.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrWagerNotFound          = errors.New("wager not found")
	ErrWinnerRequired         = errors.New("decisive outcome requires a winner")
	ErrInvitationFailed       = errors.New("invitation failed")
	ErrAccountBusy            = errors.New("account already has a pending wager")
	ErrAccountNotFound        = errors.New("account not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOutcomeUndecided       = errors.New("outcome undecided")
)

// InsufficientFundsError is returned when a hold exceeds the current balance.
// It matches ErrInsufficientFunds with errors.Is.
type InsufficientFundsError struct {
	AccountId string
	Balance   int64
	Required  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %s has %d CC, needs %d CC", e.AccountId, e.Balance, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// RecordParams identifies a ledger entry. (AccountId, Kind, Ref) is the idempotency key.
type RecordParams struct {
	AccountId string
	Kind      models.EntryKind
	Amount    int64
	Ref       string
}

// SettleParams marks a wager terminal.
type SettleParams struct {
	WagerId         string
	ExternalGameId  string
	Settlement      models.Settlement
	WinnerAccountId string
	SettlementRef   string
	SettledAt       time.Time
}

// Tx is the set of mutations available inside one atomic ledger transaction.
type Tx interface {
	// Record inserts the entry if its idempotency key is absent and applies the balance delta.
	// created is false when an existing entry was returned unchanged.
	Record(ctx context.Context, params RecordParams) (entry *models.LedgerEntry, created bool, err error)
	GetBalance(ctx context.Context, accountId string) (int64, error)

	CreateWager(ctx context.Context, wager *models.Wager) error
	GetWager(ctx context.Context, wagerId string) (*models.Wager, error)
	GetWagerByExternalId(ctx context.Context, externalGameId string) (*models.Wager, error)
	LinkWager(ctx context.Context, wagerId, externalGameId string) (bool, error)
	AssignColors(ctx context.Context, wagerId, whiteAccountId, blackAccountId string) error
	SettleWager(ctx context.Context, params SettleParams) error

	GetEscrow(ctx context.Context, wagerId string) (*models.Escrow, error)
	SaveEscrow(ctx context.Context, escrow *models.Escrow) error
}

// LedgerStore is the durable home of balances, ledger entries, wagers and escrows.
type LedgerStore interface {
	// InTx runs fn in a single transaction. Any error rolls back every write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// --- Ledger ---
	Record(ctx context.Context, params RecordParams) (*models.LedgerEntry, error)
	GetBalance(ctx context.Context, accountId string) (int64, error)
	GetLedgerPage(ctx context.Context, accountId string, beforeSeq int64, limit int) ([]models.LedgerEntry, error)
	ReconcileBalance(ctx context.Context, accountId string) error

	// --- Wagers ---
	GetWager(ctx context.Context, wagerId string) (*models.Wager, error)
	GetWagerByExternalId(ctx context.Context, externalGameId string) (*models.Wager, error)
	LinkWager(ctx context.Context, wagerId, externalGameId string) (bool, error)
	GetWagerPage(ctx context.Context, accountId string, beforeSeq int64, limit int) ([]models.Wager, error)
	ListPendingWagers(ctx context.Context) ([]models.Wager, error)
	GetEscrow(ctx context.Context, wagerId string) (*models.Escrow, error)
	ListHeldEscrows(ctx context.Context) ([]models.Escrow, error)
	SumEntriesByRef(ctx context.Context, kind models.EntryKind, ref string) (int64, error)
	Totals(ctx context.Context) (balances int64, held int64, err error)

	// --- Lifecycle ---
	Close()
}

// Directory resolves accounts linked to the external game server.
type Directory interface {
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	FindLinkedAccountByName(ctx context.Context, displayName string) (*models.Account, error)
	ListLinkedAccounts(ctx context.Context) ([]models.Account, error)
}
