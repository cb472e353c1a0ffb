package config

import (
	"context"
	"fmt"
	"time"

	"github.com/glizzus/voice-rooms/internal/schedule"
	"github.com/sethvargo/go-envconfig"
)

type RoomsConfig struct {
	MonitorInterval time.Duration `env:"CHANNEL_MONITOR_INTERVAL, default=5s"`
	ViewTimeout     time.Duration `env:"VIEW_TIMEOUT, default=5m"`
	DeleteDelay     time.Duration `env:"CHANNEL_DELETE_DELAY, default=3s"`
	CleanupCron     string        `env:"CLEANUP_CRON, default=*/5 * * * *"`
}

func NewRoomsConfigFromEnv() (*RoomsConfig, error) {
	var cfg RoomsConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval <= 0 {
		return nil, fmt.Errorf("CHANNEL_MONITOR_INTERVAL must be positive, got %s", cfg.MonitorInterval)
	}
	if cfg.DeleteDelay < 0 {
		return nil, fmt.Errorf("CHANNEL_DELETE_DELAY must not be negative, got %s", cfg.DeleteDelay)
	}
	if err := schedule.ValidateCron(cfg.CleanupCron); err != nil {
		return nil, fmt.Errorf("CLEANUP_CRON: %w", err)
	}
	return &cfg, nil
}
