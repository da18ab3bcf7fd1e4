package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr           string        `env:"GUILDHALL_API_ADDR" envDefault:":8080"`
	Store          string        `env:"GUILDHALL_STORE" envDefault:"sqlite"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"GUILDHALL_SQLITE_PATH" envDefault:"guildhall.db"`
	APIToken       string        `env:"GUILDHALL_API_TOKEN"`
	BalanceFile    string        `env:"GUILDHALL_BALANCE_FILE"`
	BalancePreset  string        `env:"GUILDHALL_BALANCE_PRESET" envDefault:"default"`
	DayTickEvery   time.Duration `env:"GUILDHALL_DAY_TICK_EVERY" envDefault:"1m"`
	WorkerRunOnce  bool          `env:"GUILDHALL_WORKER_RUN_ONCE"`
	LogLevel       string        `env:"GUILDHALL_LOG_LEVEL" envDefault:"info"`
	DiscordToken   string        `env:"GUILDHALL_DISCORD_TOKEN"`
	DiscordChannel string        `env:"GUILDHALL_DISCORD_CHANNEL"`
	PushgatewayURL string        `env:"GUILDHALL_PUSHGATEWAY_URL"`
}

type CLIConfig struct {
	APIBaseURL string `env:"GUILDHALL_API_BASE_URL" envDefault:"http://localhost:8080"`
	APIToken   string `env:"GUILDHALL_API_TOKEN"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv reads a .env file when one exists. Values already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	switch cfg.Store {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return cfg, fmt.Errorf("GUILDHALL_SQLITE_PATH is required for the sqlite store")
		}
	case "memory":
	default:
		return cfg, fmt.Errorf("GUILDHALL_STORE must be postgres, sqlite or memory, got %q", cfg.Store)
	}
	if cfg.DayTickEvery <= 0 {
		return cfg, fmt.Errorf("GUILDHALL_DAY_TICK_EVERY must be > 0")
	}
	if (cfg.DiscordToken == "") != (cfg.DiscordChannel == "") {
		return cfg, fmt.Errorf("GUILDHALL_DISCORD_TOKEN and GUILDHALL_DISCORD_CHANNEL go together")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := ParseEnv(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c APIConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
