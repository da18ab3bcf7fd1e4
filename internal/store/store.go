// Package store persists game sessions: scalar columns for the headline numbers
// plus a JSON snapshot of parties, quests, debt and inventory.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"guildhall/internal/config"
	"guildhall/internal/db"
	"guildhall/internal/game"
)

var (
	_ game.Store = (*Postgres)(nil)
	_ game.Store = (*SQLite)(nil)
	_ game.Store = (*Memory)(nil)
)

// Open builds the store named by cfg.Store. The returned func releases it.
func Open(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (game.Store, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Store {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgres(pool, logger), pool.Close, nil
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLite(conn), func() { _ = conn.Close() }, nil
	case "memory":
		logger.Warn("memory store selected, sessions are lost on restart")
		return NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func encodeSnapshot(snap game.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

func decodeSnapshot(raw []byte) (game.Snapshot, error) {
	var snap game.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: %v", game.ErrInvalidSnapshot, err)
	}
	return snap, nil
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
