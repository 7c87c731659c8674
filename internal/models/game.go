package models

import (
	"strings"
	"time"
)

// Color is a side of the board
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side, or empty for an unknown color.
func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	}
	return ""
}

// Result is a finished game seen from one account's side
type Result string

const (
	ResultWin           Result = "win"
	ResultLoss          Result = "loss"
	ResultDraw          Result = "draw"
	ResultAbort         Result = "abort"
	ResultIndeterminate Result = "indeterminate"
)

// Terms are the game parameters offered with a challenge or queue ticket
type Terms struct {
	TimeSeconds      int  `json:"time" yaml:"time"`
	IncrementSeconds int  `json:"increment" yaml:"increment"`
	Rated            bool `json:"rated" yaml:"rated"`
}

// QueueKey groups matchmaking tickets that can be paired with each other
type QueueKey struct {
	TimeSeconds      int
	IncrementSeconds int
	StakeCC          int64
	Rated            bool
}

// Ticket is one account waiting in a matchmaking queue
type Ticket struct {
	AccountId   string
	DisplayName string
	StakeCC     int64
	Terms       Terms
	EnqueuedAt  time.Time
}

// Key returns the queue the ticket belongs to.
func (t Ticket) Key() QueueKey {
	return QueueKey{
		TimeSeconds:      t.Terms.TimeSeconds,
		IncrementSeconds: t.Terms.IncrementSeconds,
		StakeCC:          t.StakeCC,
		Rated:            t.Terms.Rated,
	}
}

// PendingChallenge is an invitation waiting for the external game to start
type PendingChallenge struct {
	WagerId      string
	ChallengerId string
	OpponentId   string
	OpponentName string
	StakeCC      int64
	Terms        Terms
	Started      bool
	Deadline     time.Time
}

// EventType distinguishes feed events
type EventType string

const (
	EventStart  EventType = "start"
	EventFinish EventType = "finish"
)

// GameEvent is a single delivery from the event reconciliation feed
type GameEvent struct {
	AccountId      string          `json:"accountId"`
	Type           EventType       `json:"type"`
	ExternalGameId string          `json:"gameId"`
	Outcome        *OutcomeSummary `json:"outcome,omitempty"`

	// Ack is set by feeds that need to hear back once the delivery was handled.
	// handled=false asks the feed to deliver it again.
	Ack func(handled bool) `json:"-"`
}

// Acknowledge reports the delivery's fate to its feed, if the feed asked.
func (e GameEvent) Acknowledge(handled bool) {
	if e.Ack != nil {
		e.Ack(handled)
	}
}

// Key identifies a delivery for duplicate suppression. A finish carrying a different
// outcome is a different delivery.
func (e GameEvent) Key() string {
	key := e.AccountId + "|" + string(e.Type) + "|" + e.ExternalGameId
	if e.Outcome != nil {
		key += "|" + e.Outcome.Status + "|" + string(e.Outcome.Winner) + "|" + e.Outcome.WhiteName + "|" + e.Outcome.BlackName
	}
	return key
}

// OutcomeSummary is the external game server's description of a finished game
type OutcomeSummary struct {
	GameId    string `json:"id"`
	WhiteName string `json:"white"`
	BlackName string `json:"black"`
	Winner    Color  `json:"winner,omitempty"`
	Status    string `json:"status"`
}

// abortStatuses never produce a decisive or drawn result
var abortStatuses = map[string]bool{
	"aborted": true,
	"nostart": true,
}

// unfinishedStatuses carry no result yet
var unfinishedStatuses = map[string]bool{
	"":              true,
	"created":       true,
	"started":       true,
	"unknownfinish": true,
}

// ColorOf returns the side played by displayName, or empty when it matches neither.
func (o *OutcomeSummary) ColorOf(displayName string) Color {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return ""
	}
	switch {
	case strings.EqualFold(name, strings.TrimSpace(o.WhiteName)):
		return White
	case strings.EqualFold(name, strings.TrimSpace(o.BlackName)):
		return Black
	}
	return ""
}

// NameOf returns the display name on the given side.
func (o *OutcomeSummary) NameOf(c Color) string {
	switch c {
	case White:
		return strings.TrimSpace(o.WhiteName)
	case Black:
		return strings.TrimSpace(o.BlackName)
	}
	return ""
}

// IsAbort reports an explicitly aborted game.
func (o *OutcomeSummary) IsAbort() bool {
	return abortStatuses[strings.ToLower(o.Status)]
}

// ResultFor computes the result from the perspective of color.
func (o *OutcomeSummary) ResultFor(c Color) Result {
	status := strings.ToLower(o.Status)
	switch {
	case o.IsAbort():
		return ResultAbort
	case c == "":
		return ResultIndeterminate
	case unfinishedStatuses[status]:
		return ResultIndeterminate
	case o.Winner == "":
		return ResultDraw
	case o.Winner == c:
		return ResultWin
	case o.Winner == c.Opposite():
		return ResultLoss
	}
	return ResultIndeterminate
}

// RewardTable is the flat credit paid for casual (unstaked) games
type RewardTable struct {
	Win           int64 `yaml:"win"`
	Loss          int64 `yaml:"loss"`
	Draw          int64 `yaml:"draw"`
	Indeterminate int64 `yaml:"indeterminate"`
}

// DefaultRewardTable is used when no rewards file is configured
func DefaultRewardTable() RewardTable {
	return RewardTable{Win: 8, Loss: 1, Draw: 3, Indeterminate: 1}
}

// For returns the reward for a result. Aborted games earn the indeterminate amount.
func (r RewardTable) For(result Result) int64 {
	switch result {
	case ResultWin:
		return r.Win
	case ResultLoss:
		return r.Loss
	case ResultDraw:
		return r.Draw
	}
	return r.Indeterminate
}
