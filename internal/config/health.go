package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type HealthConfig struct {
	Addr string `env:"HEALTH_ADDR, default=:8081"`
	URL  string `env:"HEALTH_URL, default=http://127.0.0.1:8081/healthz"`
}

func NewHealthConfigFromEnv() (*HealthConfig, error) {
	var cfg HealthConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
