// Package app assembles the service graph shared by the API and the worker.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"guildhall/internal/config"
	"guildhall/internal/game"
	"guildhall/internal/notify"
	"guildhall/internal/store"
)

type App struct {
	Service *game.Service
	Metrics *notify.Metrics
	Rules   game.Rules
}

// Build opens the configured store and subscribes the notifiers. The returned
// closer releases the store; Discord delivery stops when ctx is cancelled.
func Build(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (*App, func(), error) {
	balance, err := config.LoadBalance(cfg.BalancePreset, cfg.BalanceFile)
	if err != nil {
		return nil, nil, err
	}
	rules := balance.Rules()

	st, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	metrics := notify.NewMetrics()
	bus := game.NewBus(notify.NewLogger(logger), metrics)
	if cfg.DiscordToken != "" {
		d, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannel, logger)
		if err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("discord: %w", err)
		}
		bus.Subscribe(d)
		go d.Run(ctx)
	}

	logger.Info("guild rules loaded",
		"preset", cfg.BalancePreset,
		"balance_file", cfg.BalanceFile,
		"store", cfg.Store,
		"quarter_length_days", rules.QuarterLengthDays,
	)
	return &App{
		Service: game.NewService(st, rules, bus, logger),
		Metrics: metrics,
		Rules:   rules,
	}, closeStore, nil
}
