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

package database

const (
	// Account queries
	queryInsertAccount = `
		INSERT OR IGNORE INTO accounts (id, display_name, display_name_lc, linked, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetAccountById = `
		SELECT id, display_name, linked, created_at
		FROM accounts
		WHERE id = ?`

	queryGetLinkedAccountByName = `
		SELECT id, display_name, linked, created_at
		FROM accounts
		WHERE display_name_lc = ? AND linked = 1`

	queryGetLinkedAccounts = `
		SELECT id, display_name, linked, created_at
		FROM accounts
		WHERE linked = 1
		ORDER BY created_at`

	queryGetAllAccounts = `
		SELECT id, display_name, linked, created_at
		FROM accounts
		ORDER BY created_at`

	querySetAccountLinked = `
		UPDATE accounts SET linked = ? WHERE id = ?`

	// Balance queries
	queryGetBalance = `
		SELECT amount, version
		FROM balances
		WHERE account_id = ?`

	queryGetBalanceRow = `
		SELECT account_id, amount, version, updated_at
		FROM balances
		WHERE account_id = ?`

	queryInsertBalance = `
		INSERT INTO balances (account_id, amount, version, updated_at)
		VALUES (?, ?, 1, ?)`

	queryUpdateBalance = `
		UPDATE balances
		SET amount = ?, version = version + 1, updated_at = ?
		WHERE account_id = ? AND version = ?`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = ?`

	querySumBalances = `
		SELECT COALESCE(SUM(amount), 0) FROM balances`

	// Ledger queries
	queryGetEntryByKey = `
		SELECT seq, id, account_id, kind, amount, ref, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = ? AND kind = ? AND ref = ?`

	queryInsertEntry = `
		INSERT INTO ledger_entries (id, account_id, kind, amount, ref, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, kind, ref) DO NOTHING
		RETURNING seq`

	queryGetLedgerPage = `
		SELECT seq, id, account_id, kind, amount, ref, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = ? AND (? = 0 OR seq < ?)
		ORDER BY seq DESC
		LIMIT ?`

	querySumEntriesByRef = `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE kind = ? AND ref = ?`

	// Wager queries
	wagerColumns = `seq, id, stake, white_account_id, black_account_id, external_game_id,
		time_seconds, increment_seconds, rated, state, settlement, winner_account_id,
		settlement_ref, created_at, expires_at, settled_at`

	queryInsertWager = `
		INSERT INTO wagers (id, stake, white_account_id, black_account_id, external_game_id,
			time_seconds, increment_seconds, rated, state, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`

	queryGetWagerById = `
		SELECT ` + wagerColumns + `
		FROM wagers
		WHERE id = ?`

	queryGetWagerByExternalId = `
		SELECT ` + wagerColumns + `
		FROM wagers
		WHERE external_game_id = ?`

	queryLinkWager = `
		UPDATE wagers
		SET external_game_id = ?, state = 'linked'
		WHERE id = ? AND state = 'pending'`

	queryAssignColors = `
		UPDATE wagers
		SET white_account_id = ?, black_account_id = ?
		WHERE id = ?`

	querySettleWager = `
		UPDATE wagers
		SET state = 'settled', settlement = ?, winner_account_id = ?, settlement_ref = ?, settled_at = ?,
			external_game_id = COALESCE(external_game_id, ?)
		WHERE id = ? AND state != 'settled'`

	queryGetPendingWagers = `
		SELECT ` + wagerColumns + `
		FROM wagers
		WHERE state = 'pending'
		ORDER BY seq`

	queryGetWagerPage = `
		SELECT ` + wagerColumns + `
		FROM wagers
		WHERE (white_account_id = ? OR black_account_id = ?) AND (? = 0 OR seq < ?)
		ORDER BY seq DESC
		LIMIT ?`

	// Escrow queries
	queryGetEscrow = `
		SELECT wager_id, side_a_account_id, side_a_hold, side_b_account_id, side_b_hold, status, updated_at
		FROM escrows
		WHERE wager_id = ?`

	queryUpsertEscrow = `
		INSERT INTO escrows (wager_id, side_a_account_id, side_a_hold, side_b_account_id, side_b_hold, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wager_id) DO UPDATE SET
			side_a_account_id = excluded.side_a_account_id,
			side_a_hold = excluded.side_a_hold,
			side_b_account_id = excluded.side_b_account_id,
			side_b_hold = excluded.side_b_hold,
			status = excluded.status,
			updated_at = excluded.updated_at`

	queryGetHeldEscrows = `
		SELECT wager_id, side_a_account_id, side_a_hold, side_b_account_id, side_b_hold, status, updated_at
		FROM escrows
		WHERE status = 'held'
		ORDER BY updated_at`

	querySumHeldEscrows = `
		SELECT COALESCE(SUM(side_a_hold + side_b_hold), 0)
		FROM escrows
		WHERE status = 'held'`
)
