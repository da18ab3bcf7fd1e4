package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildhall/internal/game"
)

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite wraps a database opened with db.OpenSQLite.
func NewSQLite(conn *sql.DB) *SQLite {
	return &SQLite{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLite) Create(ctx context.Context, id string, snap game.Snapshot) error {
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", game.ErrSessionExists, id)
	}
	sum := game.Summarize(id, snap)
	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, day, quarter, gold, reputation, debt_balance, quarterly_payment, game_over, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, sum.Day, sum.Quarter, sum.Gold, sum.Reputation, sum.DebtBalance, sum.QuarterlyPayment, sum.GameOver, string(raw), now, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Load(ctx context.Context, id string) (game.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Snapshot{}, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	if err != nil {
		return game.Snapshot{}, err
	}
	return decodeSnapshot([]byte(raw))
}

// Update relies on the single pooled connection to keep writers from interleaving.
func (s *SQLite) Update(ctx context.Context, id, idemKey, action string, fn func(game.Snapshot) (game.Snapshot, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	if err != nil {
		return err
	}

	if key := strings.TrimSpace(idemKey); key != "" {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO idempotency_keys (session_id, key, action, created_at)
			VALUES (?, ?, ?, ?)
		`, id, key, action, s.now())
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return game.ErrDuplicateIdempotency
		}
	}

	snap, err := decodeSnapshot([]byte(raw))
	if err != nil {
		return err
	}
	next, err := fn(snap)
	if err != nil {
		return err
	}
	encoded, err := encodeSnapshot(next)
	if err != nil {
		return err
	}
	sum := game.Summarize(id, next)
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET day = ?, quarter = ?, gold = ?, reputation = ?, debt_balance = ?,
		    quarterly_payment = ?, game_over = ?, snapshot = ?, updated_at = ?
		WHERE id = ?
	`, sum.Day, sum.Quarter, sum.Gold, sum.Reputation, sum.DebtBalance, sum.QuarterlyPayment, sum.GameOver, string(encoded), s.now(), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) ListActive(ctx context.Context, limit int) ([]game.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day, quarter, gold, reputation, debt_balance, quarterly_payment, game_over, updated_at
		FROM sessions
		WHERE game_over = ''
		ORDER BY updated_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Summary
	for rows.Next() {
		var sum game.Summary
		if err := rows.Scan(&sum.ID, &sum.Day, &sum.Quarter, &sum.Gold, &sum.Reputation, &sum.DebtBalance, &sum.QuarterlyPayment, &sum.GameOver, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
