package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type BotConfig struct {
	Token         string `env:"TOKEN, required"`
	LobbyID       string `env:"MAIN_CHANNEL_ID, default=901007391477350440"`
	CategoryID    string `env:"MAIN_CATEGORY_ID, default=901007309533245490"`
	CommandPrefix string `env:"COMMAND_PREFIX, default=!"`

	// GuildID scopes slash command registration. Empty registers globally.
	GuildID string `env:"DISCORD_GUILD_ID"`
}

func NewBotConfigFromEnv() (*BotConfig, error) {
	var cfg BotConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.LobbyID == cfg.CategoryID {
		return nil, fmt.Errorf("MAIN_CHANNEL_ID and MAIN_CATEGORY_ID must differ")
	}
	return &cfg, nil
}
