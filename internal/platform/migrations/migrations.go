// Package migrations applies the canonical wallet-layer schema. Statements
// are idempotent so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		address    TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS balances (
		user_address TEXT NOT NULL REFERENCES users (address),
		token        TEXT NOT NULL,
		balance      DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_address, token)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		tx_hash      TEXT PRIMARY KEY,
		user_address TEXT NOT NULL REFERENCES users (address),
		token        TEXT NOT NULL,
		amount       DOUBLE PRECISION NOT NULL CHECK (amount > 0),
		type         TEXT NOT NULL CHECK (type IN ('deposit', 'withdrawal', 'swap')),
		status       TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'failed')),
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS withdrawal_requests (
		request_id        TEXT PRIMARY KEY,
		user_address      TEXT NOT NULL REFERENCES users (address),
		token             TEXT NOT NULL,
		amount            DOUBLE PRECISION NOT NULL CHECK (amount > 0),
		recipient_address TEXT NOT NULL,
		status            TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'completed')),
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_address, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_user ON withdrawal_requests (user_address, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_status ON withdrawal_requests (status)`,
}

// Apply executes all schema statements in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
