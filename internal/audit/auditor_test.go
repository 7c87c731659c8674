package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"cc-wager-escrow-go/internal/database"
	"cc-wager-escrow-go/internal/escrow"
	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	accounts   []models.Account
	escrows    []models.Escrow
	drifted    map[string]bool
	holdSums   map[string]int64
	listErr    error
	totalsHeld int64
}

func (f *fakeSource) ListAccounts(context.Context) ([]models.Account, error) {
	return f.accounts, f.listErr
}

func (f *fakeSource) ReconcileBalance(_ context.Context, accountId string) error {
	if f.drifted[accountId] {
		return fmt.Errorf("balance mismatch: current=10, calculated=7")
	}
	return nil
}

func (f *fakeSource) ListHeldEscrows(context.Context) ([]models.Escrow, error) {
	return f.escrows, nil
}

func (f *fakeSource) SumEntriesByRef(_ context.Context, _ models.EntryKind, ref string) (int64, error) {
	return f.holdSums[ref], nil
}

func (f *fakeSource) Totals(context.Context) (int64, int64, error) {
	return 100, f.totalsHeld, nil
}

func TestAuditor_ReportsFindings(t *testing.T) {
	src := &fakeSource{
		accounts: []models.Account{{Id: "a"}, {Id: "b"}, {Id: "c"}},
		drifted:  map[string]bool{"b": true},
		escrows: []models.Escrow{
			{WagerId: "w1", SideAHold: 20, SideBHold: 20},
			{WagerId: "w2", SideAHold: 5},
		},
		holdSums:   map[string]int64{"w1": -40, "w2": -3},
		totalsHeld: 45,
	}
	auditor := NewAuditor(src, 2)
	defer auditor.Stop()

	report, err := auditor.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, 3, report.Accounts)
	assert.Equal(t, 2, report.Escrows)
	assert.Equal(t, int64(45), report.TotalHeldCC)

	subjects := make([]string, 0, len(report.Findings))
	for _, f := range report.Findings {
		subjects = append(subjects, f.Subject)
	}
	assert.ElementsMatch(t, []string{"account:b", "escrow:w2"}, subjects)
}

func TestAuditor_ListError(t *testing.T) {
	auditor := NewAuditor(&fakeSource{listErr: errors.New("boom")}, 1)
	defer auditor.Stop()

	_, err := auditor.Run(context.Background())
	require.ErrorContains(t, err, "boom")
}

func TestAuditor_CancelledContext(t *testing.T) {
	auditor := NewAuditor(&fakeSource{accounts: []models.Account{{Id: "a"}}}, 1)
	defer auditor.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := auditor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAuditor_CleanAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "audit.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	for _, id := range []string{"acct-a", "acct-b"} {
		_, err := db.CreateAccount(ctx, id, id, true)
		require.NoError(t, err)
		_, err = db.Record(ctx, store.RecordParams{AccountId: id, Kind: models.EntryGain, Amount: 50, Ref: "grant:" + id})
		require.NoError(t, err)
	}

	engine := escrow.NewEngine(db)
	_, err = engine.OpenWager(ctx, escrow.OpenParams{
		WagerId:        "w-audit",
		StakeCC:        15,
		WhiteAccountId: "acct-a",
		BlackAccountId: "acct-b",
		Holders:        []string{"acct-a", "acct-b"},
	})
	require.NoError(t, err)

	auditor := NewAuditor(db, 3)
	defer auditor.Stop()

	report, err := auditor.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "findings: %v", report.Findings)
	assert.Equal(t, 2, report.Accounts)
	assert.Equal(t, 1, report.Escrows)
	assert.Equal(t, int64(70), report.TotalBalanceCC)
	assert.Equal(t, int64(30), report.TotalHeldCC)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	auditor := NewAuditor(&fakeSource{}, 1)
	defer auditor.Stop()

	s := NewScheduler(auditor, time.Second)
	require.Error(t, s.Start("not a cron spec"))
	<-s.Stop().Done()
}
