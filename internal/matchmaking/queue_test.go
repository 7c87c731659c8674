package matchmaking

import (
	"fmt"
	"sync"
	"testing"

	"cc-wager-escrow-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blitz = models.Terms{TimeSeconds: 180, IncrementSeconds: 2}

func ticket(accountId string, stake int64, terms models.Terms) models.Ticket {
	return models.Ticket{AccountId: accountId, DisplayName: accountId, StakeCC: stake, Terms: terms}
}

func TestJoin_PairsTwoOldest(t *testing.T) {
	q := NewQueue()

	pair, err := q.Join(ticket("alice", 10, blitz))
	require.NoError(t, err)
	assert.Nil(t, pair)

	// Duplicate join does not pair an account with itself
	pair, err = q.Join(ticket("alice", 10, blitz))
	require.NoError(t, err)
	assert.Nil(t, pair)
	assert.Equal(t, 1, q.Size())

	pair, err = q.Join(ticket("bob", 10, blitz))
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "alice", pair[0].AccountId)
	assert.Equal(t, "bob", pair[1].AccountId)
	assert.Equal(t, 0, q.Size())
}

func TestJoin_KeysAreIsolated(t *testing.T) {
	q := NewQueue()

	_, err := q.Join(ticket("alice", 10, blitz))
	require.NoError(t, err)
	pair, err := q.Join(ticket("bob", 20, blitz))
	require.NoError(t, err)
	assert.Nil(t, pair)

	rated := blitz
	rated.Rated = true
	pair, err = q.Join(ticket("carol", 10, rated))
	require.NoError(t, err)
	assert.Nil(t, pair)

	assert.Equal(t, 3, q.Size())
}

func TestJoin_RejectsInvalidTicket(t *testing.T) {
	q := NewQueue()
	_, err := q.Join(ticket(" ", 10, blitz))
	require.Error(t, err)
	_, err = q.Join(ticket("alice", -1, blitz))
	require.Error(t, err)
}

func TestLeave(t *testing.T) {
	q := NewQueue()
	_, _ = q.Join(ticket("alice", 10, blitz))
	_, _ = q.Join(ticket("alice", 50, blitz))
	_, _ = q.Join(ticket("bob", 50, models.Terms{TimeSeconds: 600}))

	assert.Equal(t, 2, q.Leave("alice"))
	assert.Equal(t, 0, q.Leave("alice"))
	assert.Equal(t, 1, q.Size())

	// Bob is not paired with a ticket that left
	pair, err := q.Join(ticket("carol", 10, blitz))
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestRequeue_KeepsHeadPosition(t *testing.T) {
	q := NewQueue()
	_, _ = q.Join(ticket("alice", 10, blitz))
	pair, _ := q.Join(ticket("bob", 10, blitz))
	require.NotNil(t, pair)

	_, _ = q.Join(ticket("carol", 10, blitz))
	q.Requeue(pair[0])

	waiting := q.Waiting(pair[0].Key())
	require.Len(t, waiting, 2)
	assert.Equal(t, "alice", waiting[0].AccountId)
	assert.Equal(t, "carol", waiting[1].AccountId)
}

func TestJoin_ConcurrentNoDoubleDequeue(t *testing.T) {
	q := NewQueue()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]int{}
	pairs := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair, err := q.Join(ticket(fmt.Sprintf("acct-%d", i), 5, blitz))
			assert.NoError(t, err)
			if pair == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			pairs++
			seen[pair[0].AccountId]++
			seen[pair[1].AccountId]++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, pairs)
	assert.Len(t, seen, 100)
	for accountId, n := range seen {
		assert.Equal(t, 1, n, accountId)
	}
	assert.Equal(t, 0, q.Size())
}
