package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// commandNamePattern mirrors Discord's CHAT_INPUT command name rule.
var commandNamePattern = regexp.MustCompile(`^[-_a-z0-9]{1,32}$`)

// CronParser accepts 5-field, 6-field (with seconds) and descriptor specs.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a parsed config before it is committed.
// It is used both at startup and for hot reloads.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.ResolveToken() == "" {
		return errors.New("discord.token: empty (set it in config or via TOKEN / DISCORD_TOKEN)")
	}
	if spec := strings.TrimSpace(cfg.Discord.CommandSync); spec != "" {
		if _, err := CronParser.Parse(spec); err != nil {
			return fmt.Errorf("discord.command_sync: invalid cron spec %q: %w", spec, err)
		}
	}
	if cfg.Logging.Discord.RatePerSec < 0 {
		return fmt.Errorf("logging.discord.rate_per_sec must be >= 0")
	}
	if cfg.Logging.Discord.Enabled && strings.TrimSpace(cfg.Logging.Discord.ChannelID) == "" {
		return fmt.Errorf("logging.discord.channel_id is required when logging.discord.enabled is true")
	}

	a := cfg.Announce
	if a.Concurrency < 0 {
		return fmt.Errorf("announce.concurrency must be >= 0")
	}
	if _, err := ParseDuration("announce.timeout", a.Timeout, 0); err != nil {
		return err
	}
	eff := a.WithDefaults()
	if !commandNamePattern.MatchString(eff.Command) {
		return fmt.Errorf("announce.command: invalid name %q (want [-_a-z0-9]{1,32})", eff.Command)
	}
	if n := len([]rune(eff.Description)); n > 100 {
		return fmt.Errorf("announce.description: too long (%d > 100)", n)
	}
	return nil
}
