package app

import (
	"time"

	core "labbot/internal/announce"
	cmdannounce "labbot/internal/commands/announce"
	kit "labbot/internal/transport"
	logx "labbot/pkg/logx"
)

const commandSyncJob = "discord.command_sync"

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    cfg.Logging.Discord.Enabled,
			ChannelID:  cfg.Logging.Discord.ChannelID,
			MinLevel:   cfg.Logging.Discord.MinLevel,
			RatePerSec: cfg.Logging.Discord.RatePerSec,
		},
	}
}

// buildAnnounce wires the announce command for cfg.
func buildAnnounce(cfg *Config, ad kit.Adapter, log logx.Logger) (*cmdannounce.Command, error) {
	ac := cfg.Announce.WithDefaults()
	timeout, err := parseDurationOrDefault("announce.timeout", ac.Timeout, time.Minute)
	if err != nil {
		return nil, err
	}

	d := core.NewDispatcher(cmdannounce.ChannelSink{Adapter: ad}, log.With(logx.String("comp", "announce.dispatch")))
	d.Concurrency = ac.Concurrency
	svc := core.NewService(ad, d, ac.Category, log.With(logx.String("comp", "announce")))

	return cmdannounce.New(svc, cmdannounce.Options{
		Name:        ac.Command,
		Description: ac.Description,
		Timeout:     timeout,
	}, log.With(logx.String("comp", "commands.announce"))), nil
}
