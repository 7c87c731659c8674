package escrow

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cc-wager-escrow-go/internal/database"
	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEngine(t *testing.T) (*Engine, *database.Service) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "escrow.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return NewEngine(db), db
}

func fund(t *testing.T, db *database.Service, accountId string, amount int64) {
	t.Helper()
	_, err := db.Record(context.Background(), store.RecordParams{
		AccountId: accountId,
		Kind:      models.EntryGain,
		Amount:    amount,
		Ref:       "grant:" + accountId,
	})
	require.NoError(t, err)
}

func balance(t *testing.T, db *database.Service, accountId string) int64 {
	t.Helper()
	b, err := db.GetBalance(context.Background(), accountId)
	require.NoError(t, err)
	return b
}

func conserved(t *testing.T, db *database.Service) int64 {
	t.Helper()
	balances, held, err := db.Totals(context.Background())
	require.NoError(t, err)
	return balances + held
}

func entriesOfKind(t *testing.T, db *database.Service, accountId string, kind models.EntryKind) []models.LedgerEntry {
	t.Helper()
	page, err := db.GetLedgerPage(context.Background(), accountId, 0, 100)
	require.NoError(t, err)
	var out []models.LedgerEntry
	for _, entry := range page {
		if entry.Kind == kind {
			out = append(out, entry)
		}
	}
	return out
}

func openPair(t *testing.T, engine *Engine, stake int64) *models.Wager {
	t.Helper()
	wager, err := engine.OpenWager(context.Background(), OpenParams{
		StakeCC:        stake,
		WhiteAccountId: "alice",
		BlackAccountId: "bob",
		Holders:        []string{"alice", "bob"},
	})
	require.NoError(t, err)
	return wager
}

func TestResolve_DecisiveWin(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 100)
	fund(t, db, "bob", 100)
	total := conserved(t, db)

	wager := openPair(t, engine, 20)
	assert.Equal(t, int64(80), balance(t, db, "alice"))
	assert.Equal(t, total, conserved(t, db))

	settled, err := engine.Resolve(ctx, ResolveParams{
		WagerId:         wager.Id,
		ExternalGameId:  "game-1",
		Settlement:      models.SettlementDecisive,
		WinnerAccountId: "alice",
	})
	require.NoError(t, err)
	assert.True(t, settled.Terminal())
	assert.Equal(t, "alice", settled.WinnerAccountId)
	assert.Equal(t, "game-1", settled.ExternalGameId)

	assert.Equal(t, int64(120), balance(t, db, "alice"))
	assert.Equal(t, int64(80), balance(t, db, "bob"))
	assert.Equal(t, total, conserved(t, db))

	escrow, err := db.GetEscrow(ctx, wager.Id)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowResolved, escrow.Status)

	assert.Len(t, entriesOfKind(t, db, "alice", models.EntryGain), 2) // grant + winnings
	releases := entriesOfKind(t, db, "bob", models.EntryStakeRelease)
	require.Len(t, releases, 1)
	assert.Zero(t, releases[0].Amount)
}

func TestResolve_Draw(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 100)
	fund(t, db, "bob", 100)

	wager := openPair(t, engine, 20)
	_, err := engine.Resolve(ctx, ResolveParams{WagerId: wager.Id, ExternalGameId: "game-2", Settlement: models.SettlementDraw})
	require.NoError(t, err)

	assert.Equal(t, int64(100), balance(t, db, "alice"))
	assert.Equal(t, int64(100), balance(t, db, "bob"))
	assert.Len(t, entriesOfKind(t, db, "alice", models.EntryRefund), 1)
	assert.Len(t, entriesOfKind(t, db, "bob", models.EntryRefund), 1)

	escrow, err := db.GetEscrow(ctx, wager.Id)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowRefunded, escrow.Status)
}

func TestResolve_Idempotent(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 50)
	fund(t, db, "bob", 50)

	wager := openPair(t, engine, 10)
	params := ResolveParams{WagerId: wager.Id, ExternalGameId: "game-3", Settlement: models.SettlementDecisive, WinnerAccountId: "bob"}

	_, err := engine.Resolve(ctx, params)
	require.NoError(t, err)
	before, err := db.GetLedgerPage(ctx, "bob", 0, 100)
	require.NoError(t, err)

	_, err = engine.Resolve(ctx, params)
	require.NoError(t, err)
	// A conflicting late outcome is absorbed too
	_, err = engine.Resolve(ctx, ResolveParams{WagerId: wager.Id, ExternalGameId: "game-3", Settlement: models.SettlementDraw})
	require.NoError(t, err)

	after, err := db.GetLedgerPage(ctx, "bob", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
	assert.Equal(t, int64(60), balance(t, db, "bob"))
	assert.Equal(t, int64(40), balance(t, db, "alice"))
}

func TestResolve_ConcurrentCallsSettleOnce(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 100)
	fund(t, db, "bob", 100)
	total := conserved(t, db)

	wager := openPair(t, engine, 30)

	outcomes := []ResolveParams{
		{WagerId: wager.Id, ExternalGameId: "game-4", Settlement: models.SettlementDecisive, WinnerAccountId: "alice"},
		{WagerId: wager.Id, ExternalGameId: "game-4", Settlement: models.SettlementDecisive, WinnerAccountId: "bob"},
		{WagerId: wager.Id, ExternalGameId: "game-4", Settlement: models.SettlementDraw},
		{WagerId: wager.Id, ExternalGameId: "game-4", Settlement: models.SettlementAbort},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(p ResolveParams) {
			defer wg.Done()
			_, err := engine.Resolve(ctx, p)
			assert.NoError(t, err)
		}(outcomes[i%len(outcomes)])
	}
	wg.Wait()

	assert.Equal(t, total, conserved(t, db))
	settled, err := db.GetWager(ctx, wager.Id)
	require.NoError(t, err)
	assert.True(t, settled.Terminal())

	sum := balance(t, db, "alice") + balance(t, db, "bob")
	assert.Equal(t, int64(200), sum)
	switch settled.Settlement {
	case models.SettlementDecisive:
		assert.Equal(t, int64(130), balance(t, db, settled.WinnerAccountId))
	default:
		assert.Equal(t, int64(100), balance(t, db, "alice"))
	}
}

func TestResolve_WinnerRequired(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 100)
	fund(t, db, "bob", 100)

	wager := openPair(t, engine, 20)
	_, err := engine.Resolve(ctx, ResolveParams{WagerId: wager.Id, ExternalGameId: "game-5", Settlement: models.SettlementDecisive})
	require.ErrorIs(t, err, store.ErrWinnerRequired)

	_, err = engine.Resolve(ctx, ResolveParams{WagerId: wager.Id, ExternalGameId: "game-5", Settlement: models.SettlementDecisive, WinnerAccountId: "mallory"})
	require.ErrorIs(t, err, store.ErrWinnerRequired)

	// Nothing moved
	assert.Equal(t, int64(80), balance(t, db, "alice"))
	assert.Equal(t, int64(80), balance(t, db, "bob"))
	pending, err := db.GetWager(ctx, wager.Id)
	require.NoError(t, err)
	assert.False(t, pending.Terminal())
}

func TestResolve_UnknownWager(t *testing.T) {
	engine, _ := setupEngine(t)
	_, err := engine.Resolve(context.Background(), ResolveParams{WagerId: "nope", ExternalGameId: "g", Settlement: models.SettlementDraw})
	require.ErrorIs(t, err, store.ErrWagerNotFound)
}

func TestResolve_NoEscrowIsBookkeeping(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()

	wager, err := engine.OpenWager(ctx, OpenParams{StakeCC: 0, WhiteAccountId: "alice", Holders: []string{"alice"}})
	require.NoError(t, err)

	settled, err := engine.Resolve(ctx, ResolveParams{WagerId: wager.Id, ExternalGameId: "game-6", Settlement: models.SettlementDecisive})
	require.NoError(t, err)
	assert.True(t, settled.Terminal())

	escrow, err := db.GetEscrow(ctx, wager.Id)
	require.NoError(t, err)
	assert.Nil(t, escrow)
}

func TestResolve_OneSidedHoldPaysOpponent(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 100)
	total := conserved(t, db)

	wager, err := engine.OpenWager(ctx, OpenParams{StakeCC: 25, WhiteAccountId: "alice", Holders: []string{"alice"}})
	require.NoError(t, err)

	settled, err := engine.Resolve(ctx, ResolveParams{
		WagerId:         wager.Id,
		ExternalGameId:  "game-7",
		Settlement:      models.SettlementDecisive,
		WinnerAccountId: "bob",
		WhiteAccountId:  "bob",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(75), balance(t, db, "alice"))
	assert.Equal(t, int64(25), balance(t, db, "bob"))
	assert.Equal(t, total, conserved(t, db))
	assert.Equal(t, "bob", settled.WhiteAccountId)
	assert.Equal(t, "alice", settled.BlackAccountId)
}

func TestOpenWager_InsufficientFundsLeavesNothing(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 100)
	fund(t, db, "bob", 5)

	_, err := engine.OpenWager(ctx, OpenParams{
		WagerId:        "w-poor",
		StakeCC:        20,
		WhiteAccountId: "alice",
		BlackAccountId: "bob",
		Holders:        []string{"alice", "bob"},
	})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)
	assert.True(t, IsFundsError(err))

	var funds *store.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.Equal(t, "bob", funds.AccountId)
	assert.Equal(t, int64(5), funds.Balance)

	assert.Equal(t, int64(100), balance(t, db, "alice"))
	_, err = db.GetWager(ctx, "w-poor")
	require.ErrorIs(t, err, store.ErrWagerNotFound)
}

func TestHoldStake(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 30)

	wager, err := engine.OpenWager(ctx, OpenParams{StakeCC: 10})
	require.NoError(t, err)

	require.NoError(t, engine.HoldStake(ctx, wager.Id, "alice", 10))
	require.NoError(t, engine.HoldStake(ctx, wager.Id, "alice", 10))
	assert.Equal(t, int64(20), balance(t, db, "alice"))

	escrow, err := db.GetEscrow(ctx, wager.Id)
	require.NoError(t, err)
	assert.Equal(t, "alice", escrow.SideAAccountId)
	assert.Equal(t, int64(10), escrow.SideAHold)

	sum, err := db.SumEntriesByRef(ctx, models.EntryStakeHold, wager.Id)
	require.NoError(t, err)
	assert.Equal(t, -escrow.Total(), sum)

	err = engine.HoldStake(ctx, "missing", "alice", 1)
	require.ErrorIs(t, err, store.ErrWagerNotFound)
}

func TestHoldStake_ConcurrentHoldsNeverOverdraw(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.OpenWager(ctx, OpenParams{StakeCC: 20, WhiteAccountId: "alice", Holders: []string{"alice"}})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, store.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, int64(10), balance(t, db, "alice"))
}

func TestCancel(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()
	fund(t, db, "alice", 100)
	fund(t, db, "bob", 100)

	pending := openPair(t, engine, 20)
	cancelled, err := engine.Cancel(ctx, pending.Id, "timeout:"+pending.Id)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, int64(100), balance(t, db, "alice"))
	assert.Equal(t, int64(100), balance(t, db, "bob"))

	settled, err := db.GetWager(ctx, pending.Id)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementAbort, settled.Settlement)
	assert.Empty(t, settled.ExternalGameId)

	cancelled, err = engine.Cancel(ctx, pending.Id, "timeout:"+pending.Id)
	require.NoError(t, err)
	assert.False(t, cancelled)

	// A linked wager is out of reach for the timeout path
	linkedWager := openPair(t, engine, 20)
	ok, err := db.LinkWager(ctx, linkedWager.Id, "game-8")
	require.NoError(t, err)
	require.True(t, ok)

	cancelled, err = engine.Cancel(ctx, linkedWager.Id, "timeout:"+linkedWager.Id)
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Equal(t, int64(80), balance(t, db, "alice"))
}

func TestCorrectColors(t *testing.T) {
	wager := &models.Wager{WhiteAccountId: "alice", BlackAccountId: "bob"}

	white, black := correctColors(wager, "bob", "")
	assert.Equal(t, "bob", white)
	assert.Equal(t, "alice", black)

	white, black = correctColors(wager, "", "bob")
	assert.Equal(t, "alice", white)
	assert.Equal(t, "bob", black)

	white, black = correctColors(&models.Wager{WhiteAccountId: "alice"}, "", "alice")
	assert.Equal(t, "", white)
	assert.Equal(t, "alice", black)
}
