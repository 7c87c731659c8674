package registry

import (
	"fmt"
	"sync"
	"testing"

	"cc-wager-escrow-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLookupRelease(t *testing.T) {
	r := New()

	require.NoError(t, r.Register("alice", "w1"))
	require.NoError(t, r.Register("alice", "w1"))

	wagerId, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "w1", wagerId)

	err := r.Register("alice", "w2")
	require.ErrorIs(t, err, store.ErrAccountBusy)

	assert.False(t, r.Release("alice", "w2"))
	assert.True(t, r.Release("alice", "w1"))
	_, ok = r.Lookup("alice")
	assert.False(t, ok)

	assert.False(t, r.Release("alice", "w1"))
}

func TestReleaseWager(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("alice", "w1"))
	require.NoError(t, r.Register("bob", "w1"))
	require.NoError(t, r.Register("carol", "w2"))

	r.ReleaseWager("w1", "alice", "bob", "carol", "")

	assert.Equal(t, map[string]string{"carol": "w2"}, r.Snapshot())
	assert.Equal(t, 1, r.Len())
}

func TestConcurrentRegisterOneWins(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := r.Register("alice", fmt.Sprintf("w%d", i)); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, r.Len())
}
