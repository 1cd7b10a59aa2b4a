package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"gangs/internal/gang"
)

// SQLite is a single-file store for development and small servers. It also
// carries a wallets table so it can stand in for the economy service.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, logger: logger}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gangs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			tag TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT 'WHITE',
			level INTEGER NOT NULL DEFAULT 1,
			xp INTEGER NOT NULL DEFAULT 0,
			balance INTEGER NOT NULL DEFAULT 0,
			founded_at TEXT NOT NULL,
			weekly_fee INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS gang_members (
			gang_id TEXT NOT NULL REFERENCES gangs(id) ON DELETE CASCADE,
			player_id TEXT NOT NULL,
			rank TEXT NOT NULL,
			contributed_xp INTEGER NOT NULL DEFAULT 0,
			joined_at TEXT NOT NULL,
			last_fee_paid TEXT NOT NULL,
			missed_payments INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (gang_id, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS gang_perks (
			gang_id TEXT NOT NULL REFERENCES gangs(id) ON DELETE CASCADE,
			perk TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (gang_id, perk)
		);`,
		`CREATE TABLE IF NOT EXISTS gang_territory (
			gang_id TEXT NOT NULL REFERENCES gangs(id) ON DELETE CASCADE,
			chunk INTEGER NOT NULL,
			PRIMARY KEY (gang_id, chunk)
		);`,
		`CREATE TABLE IF NOT EXISTS wallets (
			player_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func formatTime(t time.Time) string {
	return utc(t).Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *SQLite) LoadGangs(ctx context.Context) ([]gang.Record, error) {
	set := newRecordSet()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tag, color, level, xp, balance, founded_at, weekly_fee
		FROM gangs ORDER BY founded_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load gangs: %w", err)
	}
	for rows.Next() {
		var rec gang.Record
		var founded string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Tag, &rec.Color, &rec.Level, &rec.XP, &rec.Balance, &founded, &rec.WeeklyFee); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan gang: %w", err)
		}
		rec.Founded = parseTime(founded)
		set.addGang(rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load gangs: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT gang_id, player_id, rank, contributed_xp, joined_at, last_fee_paid, missed_payments
		FROM gang_members`)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	for rows.Next() {
		var gangID, player, joined, paid string
		var m gang.MemberRecord
		if err := rows.Scan(&gangID, &player, &m.Rank, &m.ContributedXP, &joined, &paid, &m.MissedPayments); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.JoinedAt = parseTime(joined)
		m.LastFeePaid = parseTime(paid)
		if !set.addMember(gangID, player, m) {
			s.logger.Warn("orphan member row", "gang", gangID, "player", player)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT gang_id, perk FROM gang_perks ORDER BY gang_id, position`)
	if err != nil {
		return nil, fmt.Errorf("load perks: %w", err)
	}
	for rows.Next() {
		var gangID, perk string
		if err := rows.Scan(&gangID, &perk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan perk: %w", err)
		}
		set.addPerk(gangID, perk)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load perks: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT gang_id, chunk FROM gang_territory ORDER BY gang_id, chunk`)
	if err != nil {
		return nil, fmt.Errorf("load territory: %w", err)
	}
	for rows.Next() {
		var gangID string
		var chunk int64
		if err := rows.Scan(&gangID, &chunk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan territory: %w", err)
		}
		set.addChunk(gangID, chunk)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load territory: %w", err)
	}

	return set.list(), nil
}

func (s *SQLite) SaveGangs(ctx context.Context, records []gang.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save gangs: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gangs`); err != nil {
		return fmt.Errorf("save gangs: %w", err)
	}
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gangs (id, name, tag, color, level, xp, balance, founded_at, weekly_fee)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Name, rec.Tag, rec.Color, rec.Level, rec.XP, rec.Balance, formatTime(rec.Founded), rec.WeeklyFee,
		); err != nil {
			return fmt.Errorf("insert gang %s: %w", rec.ID, err)
		}
		for player, m := range rec.Members {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO gang_members (gang_id, player_id, rank, contributed_xp, joined_at, last_fee_paid, missed_payments)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, player, m.Rank, m.ContributedXP, formatTime(m.JoinedAt), formatTime(m.LastFeePaid), m.MissedPayments,
			); err != nil {
				return fmt.Errorf("insert member %s: %w", player, err)
			}
		}
		for i, p := range rec.Perks {
			if _, err := tx.ExecContext(ctx, `INSERT INTO gang_perks (gang_id, perk, position) VALUES (?, ?, ?)`, rec.ID, p, i); err != nil {
				return fmt.Errorf("insert perk %s: %w", p, err)
			}
		}
		for _, c := range rec.Territory {
			if _, err := tx.ExecContext(ctx, `INSERT INTO gang_territory (gang_id, chunk) VALUES (?, ?)`, rec.ID, c); err != nil {
				return fmt.Errorf("insert chunk %d: %w", c, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save gangs: %w", err)
	}
	return nil
}

func (s *SQLite) Balance(ctx context.Context, player uuid.UUID) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE player_id = ?`, player.String()).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	return balance, nil
}

func (s *SQLite) Withdraw(ctx context.Context, player uuid.UUID, amount int64) (bool, error) {
	if amount <= 0 {
		return false, gang.ErrInvalidAmount
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE wallets SET balance = balance - ?
		WHERE player_id = ? AND balance >= ?`, amount, player.String(), amount)
	if err != nil {
		return false, fmt.Errorf("wallet withdraw: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("wallet withdraw: %w", err)
	}
	return n == 1, nil
}

func (s *SQLite) Deposit(ctx context.Context, player uuid.UUID, amount int64) error {
	if amount <= 0 {
		return gang.ErrInvalidAmount
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (player_id, balance) VALUES (?, ?)
		ON CONFLICT (player_id) DO UPDATE SET balance = balance + excluded.balance`,
		player.String(), amount)
	if err != nil {
		return fmt.Errorf("wallet deposit: %w", err)
	}
	return nil
}
