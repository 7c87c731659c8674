package common

import (
	"os"
	"path/filepath"
	"testing"

	"cc-wager-escrow-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadRewardTable(t *testing.T) {
	table, err := LoadRewardTable("")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRewardTable(), table)

	table, err = LoadRewardTable(writeFile(t, "rewards:\n  win: 10\n  loss: 2\n  draw: 4\n  indeterminate: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, models.RewardTable{Win: 10, Loss: 2, Draw: 4}, table)
}

func TestLoadRewardTable_Errors(t *testing.T) {
	tests := map[string]string{
		"negative":        "rewards:\n  win: -1\n",
		"unknown field":   "rewards:\n  jackpot: 100\n",
		"missing section": "other: true\n",
		"not yaml":        "rewards: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRewardTable(writeFile(t, body))
			require.Error(t, err)
		})
	}

	_, err := LoadRewardTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
