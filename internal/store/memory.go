package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"guildhall/internal/game"
)

type memoryRow struct {
	snapshot  []byte
	updatedAt time.Time
}

// Memory keeps encoded snapshots in a map. It backs tests and throwaway servers.
type Memory struct {
	mu   sync.Mutex
	rows map[string]memoryRow
	keys map[string]string
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rows: map[string]memoryRow{},
		keys: map[string]string{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Create(_ context.Context, id string, snap game.Snapshot) error {
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; ok {
		return fmt.Errorf("%w: %s", game.ErrSessionExists, id)
	}
	m.rows[id] = memoryRow{snapshot: raw, updatedAt: m.now()}
	return nil
}

func (m *Memory) Load(_ context.Context, id string) (game.Snapshot, error) {
	m.mu.Lock()
	row, ok := m.rows[id]
	m.mu.Unlock()
	if !ok {
		return game.Snapshot{}, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	return decodeSnapshot(row.snapshot)
}

func (m *Memory) Update(ctx context.Context, id, idemKey, action string, fn func(game.Snapshot) (game.Snapshot, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	key := strings.TrimSpace(idemKey)
	if key != "" {
		if _, seen := m.keys[id+"\x00"+key]; seen {
			return game.ErrDuplicateIdempotency
		}
	}
	snap, err := decodeSnapshot(row.snapshot)
	if err != nil {
		return err
	}
	next, err := fn(snap)
	if err != nil {
		return err
	}
	raw, err := encodeSnapshot(next)
	if err != nil {
		return err
	}
	if key != "" {
		m.keys[id+"\x00"+key] = action
	}
	m.rows[id] = memoryRow{snapshot: raw, updatedAt: m.now()}
	return nil
}

func (m *Memory) ListActive(_ context.Context, limit int) ([]game.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.Summary, 0, len(m.rows))
	for id, row := range m.rows {
		snap, err := decodeSnapshot(row.snapshot)
		if err != nil {
			return nil, err
		}
		if snap.State.GameOver != "" {
			continue
		}
		sum := game.Summarize(id, snap)
		sum.UpdatedAt = row.updatedAt
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
