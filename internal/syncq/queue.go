// Package syncq keeps game commands that could not reach the server in
// ~/.guildhall/queue.json until `guildhall sync` replays them.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrOffline marks a send that never reached the server. Flush stops at the
// first one and keeps the rest of the queue.
var ErrOffline = errors.New("server unreachable")

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

type Failure struct {
	Command Command
	Err     error
}

type Result struct {
	Sent      int
	Failed    []Failure
	Remaining int
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".guildhall")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("read queue %s: %w", path, err)
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	if commands == nil {
		commands = []Command{}
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Flush replays the queue in order. Commands the server rejected are reported
// and dropped; the queue is cut at the first offline failure.
func Flush(ctx context.Context, s Sender) (Result, error) {
	commands, err := Load()
	if err != nil {
		return Result{}, err
	}
	var res Result
	for i, cmd := range commands {
		err := s.Send(ctx, cmd)
		switch {
		case err == nil:
			res.Sent++
		case errors.Is(err, ErrOffline) || ctx.Err() != nil:
			rest := commands[i:]
			res.Remaining = len(rest)
			return res, Save(rest)
		default:
			res.Failed = append(res.Failed, Failure{Command: cmd, Err: err})
		}
	}
	return res, Save(nil)
}
