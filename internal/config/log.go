package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type LogConfig struct {
	Level  string `env:"LOG_LEVEL, default=INFO"`
	Format string `env:"LOG_FORMAT, default=text"`
	Dir    string `env:"LOG_DIR, default=logs"`
}

func NewLogConfigFromEnv() (*LogConfig, error) {
	var cfg LogConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
