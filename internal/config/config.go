package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DiscordToken          string        `env:"DISCORD_TOKEN,required,notEmpty"`
	CommandPrefix         string        `env:"COMMAND_PREFIX" envDefault:"$"`
	StoragePath           string        `env:"STORAGE_PATH" envDefault:"datastore.json"`
	ScriptsDir            string        `env:"SCRIPTS_DIR" envDefault:"scripts"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty             bool          `env:"LOG_PRETTY" envDefault:"false"`
	ReadTimeoutMax        time.Duration `env:"READ_TIMEOUT_MAX" envDefault:"5m"`
	SinkRate              float64       `env:"SINK_RATE" envDefault:"5"`
	DiscordGuildBlacklist []string      `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	GuildOnlyCommands     []string      `env:"GUILD_ONLY_COMMANDS" envSeparator:"," envDefault:"roles,status"`
	HistoryEnabled        bool          `env:"HISTORY_ENABLED" envDefault:"true"`
}

// New loads .env when present and parses the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, falling back to system environment variables")
	}
	return Parse(env.Options{})
}

// Parse reads the configuration with the given env options. Tests pass an
// explicit Environment map.
func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
