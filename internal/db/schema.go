package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Player and gang ids are stored as text so a damaged row can still be
// read back and skipped on load.
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS gangs`,
	`CREATE TABLE IF NOT EXISTS gangs.gangs (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		tag         TEXT NOT NULL,
		color       TEXT NOT NULL DEFAULT 'WHITE',
		level       INTEGER NOT NULL DEFAULT 1,
		xp          BIGINT NOT NULL DEFAULT 0,
		balance     BIGINT NOT NULL DEFAULT 0,
		founded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		weekly_fee  BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS gangs.members (
		gang_id         TEXT NOT NULL REFERENCES gangs.gangs(id) ON DELETE CASCADE,
		player_id       TEXT NOT NULL,
		rank            TEXT NOT NULL,
		contributed_xp  BIGINT NOT NULL DEFAULT 0,
		joined_at       TIMESTAMPTZ NOT NULL,
		last_fee_paid   TIMESTAMPTZ NOT NULL,
		missed_payments INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (gang_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS gangs.perks (
		gang_id  TEXT NOT NULL REFERENCES gangs.gangs(id) ON DELETE CASCADE,
		perk     TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (gang_id, perk)
	)`,
	`CREATE TABLE IF NOT EXISTS gangs.territory (
		gang_id TEXT NOT NULL REFERENCES gangs.gangs(id) ON DELETE CASCADE,
		chunk   BIGINT NOT NULL,
		PRIMARY KEY (gang_id, chunk)
	)`,
	`CREATE TABLE IF NOT EXISTS gangs.wallets (
		player_id  UUID PRIMARY KEY,
		balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the gangs schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
