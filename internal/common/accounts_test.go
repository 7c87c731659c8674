package common

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cc-wager-escrow-go/internal/database"
	"cc-wager-escrow-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAccounts(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "common.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.CreateAccount(ctx, "acct-a", "Alice", true)
	require.NoError(t, err)
	_, err = db.CreateAccount(ctx, "acct-b", "Bob", false)
	require.NoError(t, err)

	all, err := ResolveAccounts(ctx, db, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byId, err := ResolveAccounts(ctx, db, "acct-b")
	require.NoError(t, err)
	require.Len(t, byId, 1)
	assert.Equal(t, "Bob", byId[0].DisplayName)

	byName, err := ResolveAccounts(ctx, db, "alice")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "acct-a", byName[0].Id)

	// unlinked accounts are not found by name
	_, err = ResolveAccounts(ctx, db, "Bob")
	require.Error(t, err)
}
