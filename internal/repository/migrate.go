package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the database schema. Idempotent; safe on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS players (
			player_id VARCHAR(64) PRIMARY KEY,
			balance NUMERIC(20, 2) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id VARCHAR(64) PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			amount_delta NUMERIC(20, 2) NOT NULL,
			kind VARCHAR(20) NOT NULL,
			balance_before NUMERIC(20, 2) NOT NULL,
			balance_after NUMERIC(20, 2) NOT NULL,
			note VARCHAR(50),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_player_time
			ON ledger_entries(player_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS settlements (
			period BIGINT NOT NULL,
			player_id VARCHAR(64) NOT NULL,
			nickname VARCHAR(255),
			stake NUMERIC(20, 2) NOT NULL,
			payout NUMERIC(20, 2) NOT NULL,
			profit NUMERIC(20, 2) NOT NULL,
			balance_after NUMERIC(20, 2) NOT NULL,
			detail TEXT,
			settled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (period, player_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_time ON settlements(settled_at)`,
	}

	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
