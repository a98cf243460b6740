package config

import (
	logx "labbot/pkg/logx"
	"sort"
	"strings"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 3)
	attrs := make([]logx.Field, 0, 12)

	// Discord (never log token)
	tokenChanged := strings.TrimSpace(oldCfg.Discord.Token) != strings.TrimSpace(newCfg.Discord.Token)
	if tokenChanged ||
		strings.TrimSpace(oldCfg.Discord.GuildID) != strings.TrimSpace(newCfg.Discord.GuildID) ||
		strings.TrimSpace(oldCfg.Discord.CommandSync) != strings.TrimSpace(newCfg.Discord.CommandSync) {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_changed", tokenChanged),
			logx.String("discord.guild_id", strings.TrimSpace(newCfg.Discord.GuildID)),
			logx.String("discord.command_sync", strings.TrimSpace(newCfg.Discord.CommandSync)),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	// Announce (compare effective values so omitted == default)
	oA := oldCfg.Announce.WithDefaults()
	nA := newCfg.Announce.WithDefaults()
	if oA != nA {
		changed = append(changed, "announce")
		attrs = append(attrs,
			logx.String("announce.category", nA.Category),
			logx.String("announce.command", nA.Command),
			logx.Int("announce.concurrency", nA.Concurrency),
			logx.String("announce.timeout", nA.Timeout),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// CommandsChanged reports whether the slash command definition differs, which
// requires re-registering commands with the platform.
func CommandsChanged(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	oA := oldCfg.Announce.WithDefaults()
	nA := newCfg.Announce.WithDefaults()
	return oA.Command != nA.Command || oA.Description != nA.Description
}
