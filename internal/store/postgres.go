package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"guildhall/internal/game"
)

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, log: logger}
}

func (p *Postgres) Create(ctx context.Context, id string, snap game.Snapshot) error {
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	sum := game.Summarize(id, snap)
	_, err = p.pool.Exec(ctx, `
		INSERT INTO guild.sessions (id, day, quarter, gold, reputation, debt_balance, quarterly_payment, game_over, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id, sum.Day, sum.Quarter, sum.Gold, sum.Reputation, sum.DebtBalance, sum.QuarterlyPayment, sum.GameOver, raw)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", game.ErrSessionExists, id)
	}
	return err
}

func (p *Postgres) Load(ctx context.Context, id string) (game.Snapshot, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT snapshot FROM guild.sessions WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Snapshot{}, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	if err != nil {
		return game.Snapshot{}, err
	}
	return decodeSnapshot(raw)
}

// Update locks the session row inside a serializable transaction and retries
// serialization failures with a doubling backoff.
func (p *Postgres) Update(ctx context.Context, id, idemKey, action string, fn func(game.Snapshot) (game.Snapshot, error)) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := p.updateOnce(ctx, id, idemKey, action, fn)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		p.log.Debug("session update conflict", "session_id", id, "action", action, "attempt", attempt+1)
		if attempt == maxAttempts-1 {
			return game.ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func (p *Postgres) updateOnce(ctx context.Context, id, idemKey, action string, fn func(game.Snapshot) (game.Snapshot, error)) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `
		SELECT snapshot
		FROM guild.sessions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	if err != nil {
		return err
	}
	if err := claimIdempotency(ctx, tx, id, idemKey, action); err != nil {
		return err
	}

	snap, err := decodeSnapshot(raw)
	if err != nil {
		return err
	}
	next, err := fn(snap)
	if err != nil {
		return err
	}
	raw, err = encodeSnapshot(next)
	if err != nil {
		return err
	}
	sum := game.Summarize(id, next)
	if _, err := tx.Exec(ctx, `
		UPDATE guild.sessions
		SET day = $2, quarter = $3, gold = $4, reputation = $5, debt_balance = $6,
		    quarterly_payment = $7, game_over = $8, snapshot = $9, updated_at = now()
		WHERE id = $1
	`, id, sum.Day, sum.Quarter, sum.Gold, sum.Reputation, sum.DebtBalance, sum.QuarterlyPayment, sum.GameOver, raw); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ListActive(ctx context.Context, limit int) ([]game.Summary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, day, quarter, gold, reputation, debt_balance, quarterly_payment, game_over, updated_at
		FROM guild.sessions
		WHERE game_over = ''
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Summary
	for rows.Next() {
		var s game.Summary
		if err := rows.Scan(&s.ID, &s.Day, &s.Quarter, &s.Gold, &s.Reputation, &s.DebtBalance, &s.QuarterlyPayment, &s.GameOver, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, sessionID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO guild.idempotency_keys (session_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, key) DO NOTHING
	`, sessionID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
