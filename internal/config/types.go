package config

import (
	"os"
	"strings"
)

type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Logging  LoggingConfig  `json:"logging"`
	Announce AnnounceConfig `json:"announce"`
}

type DiscordConfig struct {
	// Token is the bot token. When empty, the TOKEN or DISCORD_TOKEN
	// environment variable is used (see ResolveToken).
	Token string `json:"token,omitempty"`

	// GuildID scopes slash command registration to a single guild.
	// Guild commands propagate instantly; global ones can take up to an hour.
	GuildID string `json:"guild_id,omitempty"`

	// CommandSync is an optional cron spec (e.g. "@every 6h", "0 3 * * *")
	// that forces slash commands to be re-registered.
	CommandSync string `json:"command_sync,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// AnnounceConfig controls the /announce command.
//
// Defaults (when fields are omitted/zero):
//   - category: "Labs [25T2]"
//   - command: "announce"
//   - description: "Announce number of RFF tasks to respective channels"
//   - concurrency: 1 (sequential sends)
//   - timeout: "60s"
type AnnounceConfig struct {
	Category    string `json:"category,omitempty"`
	Command     string `json:"command,omitempty"`
	Description string `json:"description,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`

	// Timeout bounds one modal submission (all lookups and sends).
	Timeout string `json:"timeout,omitempty"`
}

const (
	DefaultCategory    = "Labs [25T2]"
	DefaultCommand     = "announce"
	DefaultDescription = "Announce number of RFF tasks to respective channels"
	DefaultTimeout     = "60s"
)

// WithDefaults returns a copy of a with zero fields replaced by defaults.
func (a AnnounceConfig) WithDefaults() AnnounceConfig {
	if strings.TrimSpace(a.Category) == "" {
		a.Category = DefaultCategory
	}
	if strings.TrimSpace(a.Command) == "" {
		a.Command = DefaultCommand
	}
	if strings.TrimSpace(a.Description) == "" {
		a.Description = DefaultDescription
	}
	if a.Concurrency <= 0 {
		a.Concurrency = 1
	}
	if strings.TrimSpace(a.Timeout) == "" {
		a.Timeout = DefaultTimeout
	}
	return a
}

// tokenEnvKeys are consulted in order when discord.token is empty.
var tokenEnvKeys = []string{"TOKEN", "DISCORD_TOKEN"}

// ResolveToken returns the configured bot token, falling back to the
// environment.
func (c *Config) ResolveToken() string {
	if c == nil {
		return ""
	}
	if t := strings.TrimSpace(c.Discord.Token); t != "" {
		return t
	}
	for _, k := range tokenEnvKeys {
		if t := strings.TrimSpace(os.Getenv(k)); t != "" {
			return t
		}
	}
	return ""
}
