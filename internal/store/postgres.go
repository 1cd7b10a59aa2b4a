package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gangs/internal/gang"
)

type Postgres struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

func (s *Postgres) LoadGangs(ctx context.Context) ([]gang.Record, error) {
	set := newRecordSet()

	rows, err := s.db.Query(ctx, `
		SELECT id, name, tag, color, level, xp, balance, founded_at, weekly_fee
		FROM gangs.gangs
		ORDER BY founded_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("load gangs: %w", err)
	}
	for rows.Next() {
		var rec gang.Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Tag, &rec.Color, &rec.Level, &rec.XP, &rec.Balance, &rec.Founded, &rec.WeeklyFee); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan gang: %w", err)
		}
		set.addGang(rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load gangs: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT gang_id, player_id, rank, contributed_xp, joined_at, last_fee_paid, missed_payments
		FROM gangs.members
	`)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	for rows.Next() {
		var gangID, player string
		var m gang.MemberRecord
		if err := rows.Scan(&gangID, &player, &m.Rank, &m.ContributedXP, &m.JoinedAt, &m.LastFeePaid, &m.MissedPayments); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if !set.addMember(gangID, player, m) {
			s.logger.Warn("orphan member row", "gang", gangID, "player", player)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	rows, err = s.db.Query(ctx, `SELECT gang_id, perk FROM gangs.perks ORDER BY gang_id, position`)
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

	rows, err = s.db.Query(ctx, `SELECT gang_id, chunk FROM gangs.territory ORDER BY gang_id, chunk`)
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

// SaveGangs replaces every stored gang with records in one serializable
// transaction, retrying on serialization failures.
func (s *Postgres) SaveGangs(ctx context.Context, records []gang.Record) error {
	const maxAttempts = 5
	retryDelay := 50 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.saveOnce(ctx, records)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return fmt.Errorf("save gangs: %w", err)
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		retryDelay *= 2
	}
	return ErrTxConflict
}

func (s *Postgres) saveOnce(ctx context.Context, records []gang.Record) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM gangs.gangs`); err != nil {
		return err
	}

	var gangRows, memberRows, perkRows, chunkRows [][]any
	for _, rec := range records {
		gangRows = append(gangRows, []any{rec.ID, rec.Name, rec.Tag, rec.Color, rec.Level, rec.XP, rec.Balance, utc(rec.Founded), rec.WeeklyFee})
		for player, m := range rec.Members {
			memberRows = append(memberRows, []any{rec.ID, player, m.Rank, m.ContributedXP, utc(m.JoinedAt), utc(m.LastFeePaid), m.MissedPayments})
		}
		for i, p := range rec.Perks {
			perkRows = append(perkRows, []any{rec.ID, p, i})
		}
		for _, c := range rec.Territory {
			chunkRows = append(chunkRows, []any{rec.ID, c})
		}
	}

	copies := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"gangs", []string{"id", "name", "tag", "color", "level", "xp", "balance", "founded_at", "weekly_fee"}, gangRows},
		{"members", []string{"gang_id", "player_id", "rank", "contributed_xp", "joined_at", "last_fee_paid", "missed_payments"}, memberRows},
		{"perks", []string{"gang_id", "perk", "position"}, perkRows},
		{"territory", []string{"gang_id", "chunk"}, chunkRows},
	}
	for _, c := range copies {
		if len(c.rows) == 0 {
			continue
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"gangs", c.table}, c.columns, pgx.CopyFromRows(c.rows)); err != nil {
			return fmt.Errorf("copy %s: %w", c.table, err)
		}
	}
	return tx.Commit(ctx)
}

// PGWallet is a player wallet table usable as the gang economy.
type PGWallet struct {
	db *pgxpool.Pool
}

func NewPGWallet(db *pgxpool.Pool) *PGWallet {
	return &PGWallet{db: db}
}

func (w *PGWallet) Balance(ctx context.Context, player uuid.UUID) (int64, error) {
	var balance int64
	err := w.db.QueryRow(ctx, `SELECT balance FROM gangs.wallets WHERE player_id = $1`, player).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	return balance, nil
}

func (w *PGWallet) Withdraw(ctx context.Context, player uuid.UUID, amount int64) (bool, error) {
	if amount <= 0 {
		return false, gang.ErrInvalidAmount
	}
	tag, err := w.db.Exec(ctx, `
		UPDATE gangs.wallets
		SET balance = balance - $2, updated_at = now()
		WHERE player_id = $1 AND balance >= $2
	`, player, amount)
	if err != nil {
		return false, fmt.Errorf("wallet withdraw: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (w *PGWallet) Deposit(ctx context.Context, player uuid.UUID, amount int64) error {
	if amount <= 0 {
		return gang.ErrInvalidAmount
	}
	_, err := w.db.Exec(ctx, `
		INSERT INTO gangs.wallets (player_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (player_id) DO UPDATE
		SET balance = gangs.wallets.balance + EXCLUDED.balance, updated_at = now()
	`, player, amount)
	if err != nil {
		return fmt.Errorf("wallet deposit: %w", err)
	}
	return nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
