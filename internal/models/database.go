/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "time"

// EntryKind classifies a balance-affecting ledger entry
type EntryKind string

const (
	EntryGain         EntryKind = "gain"
	EntrySpend        EntryKind = "spend"
	EntryStakeHold    EntryKind = "stake_hold"
	EntryStakeRelease EntryKind = "stake_release"
	EntryRefund       EntryKind = "refund"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryGain, EntrySpend, EntryStakeHold, EntryStakeRelease, EntryRefund:
		return true
	}
	return false
}

// WagerState is the resolution-side lifecycle of a wager
type WagerState string

const (
	WagerPending WagerState = "pending"
	WagerLinked  WagerState = "linked"
	WagerSettled WagerState = "settled"
)

// Settlement is the terminal allocation applied to a wager's escrow
type Settlement string

const (
	SettlementDecisive Settlement = "decisive"
	SettlementDraw     Settlement = "draw"
	SettlementAbort    Settlement = "abort"
)

// EscrowStatus only moves forward: held -> resolved | refunded
type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowResolved EscrowStatus = "resolved"
	EscrowRefunded EscrowStatus = "refunded"
)

// Account represents a linked player
type Account struct {
	Id          string    `db:"id"`
	DisplayName string    `db:"display_name"`
	Linked      bool      `db:"linked"`
	CreatedAt   time.Time `db:"created_at"`
}

// Balance is the current-balance projection for an account (hot data)
type Balance struct {
	AccountId string    `db:"account_id"`
	AmountCC  int64     `db:"amount"`
	Version   int64     `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

// LedgerEntry is an immutable balance-affecting record (cold data)
type LedgerEntry struct {
	Seq          int64     `db:"seq"`
	Id           string    `db:"id"`
	AccountId    string    `db:"account_id"`
	Kind         EntryKind `db:"kind"`
	Amount       int64     `db:"amount"`
	Ref          string    `db:"ref"`
	BalanceAfter int64     `db:"balance_after"`
	CreatedAt    time.Time `db:"created_at"`
}

// Wager is a staked or unstaked match tracked for settlement
type Wager struct {
	Seq             int64      `db:"seq"`
	Id              string     `db:"id"`
	StakeCC         int64      `db:"stake"`
	WhiteAccountId  string     `db:"white_account_id"`
	BlackAccountId  string     `db:"black_account_id"`
	ExternalGameId  string     `db:"external_game_id"`
	Terms           Terms      `db:"-"`
	State           WagerState `db:"state"`
	Settlement      Settlement `db:"settlement"`
	WinnerAccountId string     `db:"winner_account_id"`
	SettlementRef   string     `db:"settlement_ref"`
	CreatedAt       time.Time  `db:"created_at"`
	ExpiresAt       time.Time  `db:"expires_at"`
	SettledAt       time.Time  `db:"settled_at"`
}

// Terminal reports whether the wager has reached its one-time settlement.
func (w *Wager) Terminal() bool {
	return w.State == WagerSettled
}

// Participants returns the known account ids on either side.
func (w *Wager) Participants() []string {
	var ids []string
	if w.WhiteAccountId != "" {
		ids = append(ids, w.WhiteAccountId)
	}
	if w.BlackAccountId != "" && w.BlackAccountId != w.WhiteAccountId {
		ids = append(ids, w.BlackAccountId)
	}
	return ids
}

// Escrow holds the stakes of one wager
type Escrow struct {
	WagerId        string       `db:"wager_id"`
	SideAAccountId string       `db:"side_a_account_id"`
	SideAHold      int64        `db:"side_a_hold"`
	SideBAccountId string       `db:"side_b_account_id"`
	SideBHold      int64        `db:"side_b_hold"`
	Status         EscrowStatus `db:"status"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

// Total is the amount currently earmarked by the escrow.
func (e *Escrow) Total() int64 {
	return e.SideAHold + e.SideBHold
}

// HoldOf returns the hold owned by accountId, or zero.
func (e *Escrow) HoldOf(accountId string) int64 {
	switch accountId {
	case "":
		return 0
	case e.SideAAccountId:
		return e.SideAHold
	case e.SideBAccountId:
		return e.SideBHold
	}
	return 0
}
