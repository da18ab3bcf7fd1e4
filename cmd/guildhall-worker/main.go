package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guildhall/internal/app"
	"guildhall/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	guild, closeStore, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	sweep := func() error {
		started := time.Now()
		advanced, err := guild.Service.AdvanceAll(ctx)
		guild.Metrics.ObserveSweep(advanced, time.Since(started))
		if err != nil {
			return err
		}
		logger.Info("day tick complete", "sessions", advanced, "took", time.Since(started).String())
		return nil
	}

	if cfg.WorkerRunOnce {
		code := 0
		if err := sweep(); err != nil {
			logger.Error("tick failed", "err", err)
			code = 1
		}
		if cfg.PushgatewayURL != "" {
			if err := guild.Metrics.Push(ctx, cfg.PushgatewayURL, "guildhall_worker"); err != nil {
				logger.Error("push metrics failed", "err", err)
			}
		}
		if code == 0 {
			logger.Info("worker run-once completed")
		}
		closeStore()
		os.Exit(code)
	}

	ticker := time.NewTicker(cfg.DayTickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.DayTickEvery.String(), "store", cfg.Store)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := sweep(); err != nil {
				logger.Error("day tick failed", "err", err)
			}
		}
	}
}
