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

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerPage is one page of an account's ledger, newest first
type LedgerPage struct {
	Entries    []LedgerEntry `json:"entries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// WagerPage is one page of an account's wager history, newest first
type WagerPage struct {
	Wagers     []WagerRecord `json:"wagers"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// WagerRecord represents a wager in the account's history
type WagerRecord struct {
	Id             string     `json:"id"`
	StakeCC        int64      `json:"stake"`
	Color          Color      `json:"color,omitempty"`
	OpponentId     string     `json:"opponent_id,omitempty"`
	ExternalGameId string     `json:"game_id,omitempty"`
	State          WagerState `json:"state"`
	Result         Result     `json:"result,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

// AccountStats summarises settled wagers for an account
type AccountStats struct {
	AccountId  string          `json:"account_id"`
	Played     int             `json:"played"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	Draws      int             `json:"draws"`
	Aborts     int             `json:"aborts"`
	NetCC      int64           `json:"net_cc"`
	WinRate    decimal.Decimal `json:"win_rate"`
	AverageNet decimal.Decimal `json:"average_net"`
	BalanceCC  int64           `json:"balance"`
}

// CreditResult is returned by administrative grants and spends
type CreditResult struct {
	Success    bool         `json:"success"`
	Entry      *LedgerEntry `json:"entry,omitempty"`
	NewBalance int64        `json:"new_balance"`
	Error      string       `json:"error,omitempty"`
}
