package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{"DISCORD_TOKEN": "abc"}})
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.DiscordToken)
	assert.Equal(t, "$", cfg.CommandPrefix)
	assert.Equal(t, "datastore.json", cfg.StoragePath)
	assert.Equal(t, "scripts", cfg.ScriptsDir)
	assert.Equal(t, 5*time.Minute, cfg.ReadTimeoutMax)
	assert.Equal(t, 5.0, cfg.SinkRate)
	assert.Empty(t, cfg.DiscordGuildBlacklist)
	assert.Equal(t, []string{"roles", "status"}, cfg.GuildOnlyCommands)
	assert.True(t, cfg.HistoryEnabled)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"DISCORD_TOKEN":           "abc",
		"COMMAND_PREFIX":          "!",
		"READ_TIMEOUT_MAX":        "90s",
		"DISCORD_GUILD_BLACKLIST": "1,2",
		"LOG_PRETTY":              "true",
		"GUILD_ONLY_COMMANDS":     "whois",
		"HISTORY_ENABLED":         "false",
	}})
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, 90*time.Second, cfg.ReadTimeoutMax)
	assert.Equal(t, []string{"1", "2"}, cfg.DiscordGuildBlacklist)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, []string{"whois"}, cfg.GuildOnlyCommands)
	assert.False(t, cfg.HistoryEnabled)
}

func TestParseRequiresToken(t *testing.T) {
	_, err := Parse(env.Options{Environment: map[string]string{}})
	assert.Error(t, err)
}
