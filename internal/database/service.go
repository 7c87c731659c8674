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

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cc-wager-escrow-go/internal/models"
	"cc-wager-escrow-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time checks: *Service must satisfy the store contracts.
var (
	_ store.LedgerStore = (*Service)(nil)
	_ store.Directory   = (*Service)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}
	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	// Immediate transactions take the write lock at BEGIN, so a read-then-write
	// settlement can never interleave with another writer.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=1",
		cfg.Path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// newServiceWithDB wraps an already-open handle without touching the schema.
func newServiceWithDB(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Ping verifies the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- Accounts linked to the external game server
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		display_name_lc TEXT NOT NULL UNIQUE,
		linked BOOLEAN NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	-- Current balance per account (hot data)
	CREATE TABLE IF NOT EXISTS balances (
		account_id TEXT PRIMARY KEY,
		amount INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
		version INTEGER NOT NULL DEFAULT 1,
		updated_at INTEGER NOT NULL
	);

	-- Append-only ledger (cold data). (account_id, kind, ref) is the idempotency key.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		ref TEXT NOT NULL,
		balance_after INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(account_id, kind, ref)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_seq ON ledger_entries(account_id, seq);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_ref ON ledger_entries(ref);

	CREATE TABLE IF NOT EXISTS wagers (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		stake INTEGER NOT NULL CHECK (stake >= 0),
		white_account_id TEXT NOT NULL DEFAULT '',
		black_account_id TEXT NOT NULL DEFAULT '',
		external_game_id TEXT UNIQUE,
		time_seconds INTEGER NOT NULL DEFAULT 0,
		increment_seconds INTEGER NOT NULL DEFAULT 0,
		rated BOOLEAN NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		settlement TEXT NOT NULL DEFAULT '',
		winner_account_id TEXT NOT NULL DEFAULT '',
		settlement_ref TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		settled_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_wagers_white ON wagers(white_account_id, seq);
	CREATE INDEX IF NOT EXISTS idx_wagers_black ON wagers(black_account_id, seq);
	CREATE INDEX IF NOT EXISTS idx_wagers_state ON wagers(state);

	-- One escrow per wager; status only moves forward
	CREATE TABLE IF NOT EXISTS escrows (
		wager_id TEXT PRIMARY KEY REFERENCES wagers(id),
		side_a_account_id TEXT NOT NULL DEFAULT '',
		side_a_hold INTEGER NOT NULL DEFAULT 0,
		side_b_account_id TEXT NOT NULL DEFAULT '',
		side_b_hold INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_escrows_status ON escrows(status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// InTx runs fn inside one database transaction, committing only if fn succeeds.
func (s *Service) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Record writes a single ledger entry in its own transaction.
func (s *Service) Record(ctx context.Context, params store.RecordParams) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		entry, _, err = tx.Record(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
