package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeSummary_ResultFor(t *testing.T) {
	tests := []struct {
		name    string
		outcome OutcomeSummary
		color   Color
		want    Result
	}{
		{"white wins", OutcomeSummary{Status: "mate", Winner: White}, White, ResultWin},
		{"white loses", OutcomeSummary{Status: "resign", Winner: Black}, White, ResultLoss},
		{"draw", OutcomeSummary{Status: "stalemate"}, Black, ResultDraw},
		{"aborted ignores colour", OutcomeSummary{Status: "aborted"}, "", ResultAbort},
		{"nostart is abort", OutcomeSummary{Status: "NoStart", Winner: White}, Black, ResultAbort},
		{"still running", OutcomeSummary{Status: "started"}, White, ResultIndeterminate},
		{"no status", OutcomeSummary{}, White, ResultIndeterminate},
		{"unknown colour", OutcomeSummary{Status: "mate", Winner: White}, "", ResultIndeterminate},
		{"bogus winner", OutcomeSummary{Status: "mate", Winner: "green"}, White, ResultIndeterminate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.ResultFor(tt.color))
		})
	}
}

func TestOutcomeSummary_IsAbort(t *testing.T) {
	assert.True(t, (&OutcomeSummary{Status: "Aborted"}).IsAbort())
	assert.True(t, (&OutcomeSummary{Status: "noStart"}).IsAbort())
	assert.False(t, (&OutcomeSummary{Status: "resign"}).IsAbort())
	assert.False(t, (&OutcomeSummary{}).IsAbort())
}

func TestOutcomeSummary_ColorOf(t *testing.T) {
	o := OutcomeSummary{WhiteName: "Alice ", BlackName: "bob"}

	assert.Equal(t, White, o.ColorOf("alice"))
	assert.Equal(t, Black, o.ColorOf(" BOB"))
	assert.Equal(t, Color(""), o.ColorOf("carol"))
	assert.Equal(t, Color(""), o.ColorOf(""))
	assert.Equal(t, "Alice", o.NameOf(White))
	assert.Equal(t, "", o.NameOf(""))
	assert.Equal(t, Black, White.Opposite())
}

func TestGameEvent_Key(t *testing.T) {
	start := GameEvent{AccountId: "a", Type: EventStart, ExternalGameId: "g1"}
	finish := GameEvent{AccountId: "a", Type: EventFinish, ExternalGameId: "g1"}
	better := GameEvent{AccountId: "a", Type: EventFinish, ExternalGameId: "g1",
		Outcome: &OutcomeSummary{Status: "mate", Winner: White, WhiteName: "A", BlackName: "B"}}

	assert.NotEqual(t, start.Key(), finish.Key())
	assert.NotEqual(t, finish.Key(), better.Key())
	assert.Equal(t, better.Key(), GameEvent{AccountId: "a", Type: EventFinish, ExternalGameId: "g1",
		Outcome: &OutcomeSummary{Status: "mate", Winner: White, WhiteName: "A", BlackName: "B"}}.Key())
}

func TestRewardTable_For(t *testing.T) {
	table := DefaultRewardTable()

	assert.Equal(t, int64(8), table.For(ResultWin))
	assert.Equal(t, int64(1), table.For(ResultLoss))
	assert.Equal(t, int64(3), table.For(ResultDraw))
	assert.Equal(t, int64(1), table.For(ResultAbort))
	assert.Equal(t, int64(1), table.For(ResultIndeterminate))
}

func TestTicket_Key(t *testing.T) {
	ticket := Ticket{StakeCC: 10, Terms: Terms{TimeSeconds: 180, IncrementSeconds: 2, Rated: true}}
	assert.Equal(t, QueueKey{TimeSeconds: 180, IncrementSeconds: 2, StakeCC: 10, Rated: true}, ticket.Key())
}
