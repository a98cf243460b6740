package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"labbot/internal/config"
	"labbot/internal/task/scheduler"
	kit "labbot/internal/transport"
	logx "labbot/pkg/logx"
)

type nopAdapter struct{}

func (nopAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (nopAdapter) Stop(context.Context) error                     { return nil }
func (nopAdapter) SendText(context.Context, string, string) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (nopAdapter) ShowModal(context.Context, *kit.Interaction, kit.Modal) error  { return nil }
func (nopAdapter) Defer(context.Context, *kit.Interaction, bool) error           { return nil }
func (nopAdapter) Respond(context.Context, *kit.Interaction, string, bool) error { return nil }
func (nopAdapter) EditResponse(context.Context, *kit.Interaction, string) error  { return nil }
func (nopAdapter) Channels(context.Context, string) ([]kit.Channel, error)       { return nil, nil }

func TestBuildAnnounceDefaults(t *testing.T) {
	t.Parallel()
	c, err := buildAnnounce(&config.Config{}, nopAdapter{}, logx.Nop())
	if err != nil {
		t.Fatalf("buildAnnounce: %v", err)
	}
	cmds := c.Commands()
	if len(cmds) != 1 || cmds[0].Name != config.DefaultCommand || cmds[0].Description != config.DefaultDescription {
		t.Fatalf("Commands() = %+v", cmds)
	}
	modals := c.Modals()
	if len(modals) != 1 || modals[0].Timeout.String() != "1m0s" {
		t.Fatalf("Modals() = %+v", modals)
	}
}

func TestBuildAnnounceRejectsBadTimeout(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Announce: config.AnnounceConfig{Timeout: "soon"}}
	if _, err := buildAnnounce(cfg, nopAdapter{}, logx.Nop()); err == nil {
		t.Fatal("expected timeout parse error")
	}
}

func TestApplyCommandSync(t *testing.T) {
	t.Parallel()
	a := &App{
		log:   logx.Nop(),
		sched: scheduler.New(scheduler.Config{}, logx.Nop()),
		cmdm:  NewCommandManager(logx.Nop(), nopAdapter{}, nil, nil),
	}
	specs := func() []string {
		var out []string
		for _, s := range a.sched.Snapshot().Schedules {
			out = append(out, s.Name+"="+s.Spec)
		}
		return out
	}

	a.applyCommandSync("", "@every 6h")
	if got := specs(); len(got) != 1 || got[0] != commandSyncJob+"=@every 6h" {
		t.Fatalf("schedules = %v", got)
	}
	a.applyCommandSync("@every 6h", "0 3 * * *")
	if got := specs(); len(got) != 1 || got[0] != commandSyncJob+"=0 3 * * *" {
		t.Fatalf("schedules after change = %v", got)
	}
	a.applyCommandSync("0 3 * * *", "")
	if got := specs(); len(got) != 0 {
		t.Fatalf("schedules after removal = %v", got)
	}
}

func TestMapLogConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Logging: config.LoggingConfig{
		Level:   "debug",
		Discord: config.LoggingDiscord{Enabled: true, ChannelID: "42", MinLevel: "error", RatePerSec: 2},
	}}
	got := mapLogConfig(cfg)
	if got.Level != "debug" || !got.Discord.Enabled || got.Discord.ChannelID != "42" || got.Discord.RatePerSec != 2 {
		t.Fatalf("mapLogConfig() = %+v", got)
	}
}

func TestNewAppDefersCommandRegistry(t *testing.T) {
	t.Setenv("TOKEN", "")
	t.Setenv("DISCORD_TOKEN", "")
	p := filepath.Join(t.TempDir(), "config.yaml")
	body := "discord:\n  token: t\nannounce:\n  category: Labs\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	a, err := NewApp(p)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = a.logs.Close() })

	if a.announce == nil {
		t.Fatal("announce command not built")
	}
	if got := a.cmdm.SlashCommands(); len(got) != 0 {
		t.Fatalf("commands registered before Start: %+v", got)
	}
}
