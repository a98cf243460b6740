package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	cmdannounce "labbot/internal/commands/announce"
	"labbot/internal/config"
	"labbot/internal/runtime/sdnotify"
	"labbot/internal/task/scheduler"
	kit "labbot/internal/transport"
	discord "labbot/internal/transport/discord/adapter"
	logx "labbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *discord.Adapter
	sched   *scheduler.Service
	notify  *sdnotify.Notifier

	cmdm     *CommandManager
	serv     *Services
	announce *cmdannounce.Command

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "discord"))
	ad, err := discord.New(discord.Config{
		Token:   cfg.ResolveToken(),
		GuildID: cfg.Discord.GuildID,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	serv := &Services{RuntimeSupervisors: NewSupervisorRegistry()}
	cmdm := NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfgm, serv)

	ann, err := buildAnnounce(cfg, ad, log)
	if err != nil {
		return nil, err
	}

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		adapter:  ad,
		sched:    scheduler.New(scheduler.Config{}, log.With(logx.String("comp", "scheduler"))),
		notify:   sdnotify.New(log.With(logx.String("comp", "systemd"))),
		cmdm:     cmdm,
		serv:     serv,
		announce: ann,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	a.serv.AppSupervisor = a.sup

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error { return config.Validate(cfg) })

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if sup := a.adapter.Supervisor(); sup != nil {
		a.serv.RuntimeSupervisors.Set("discord.adapter", sup)
	}

	// Registration runs on the app supervisor, so it only starts once Start owns one.
	a.cmdm.SetRegistry(a.announce.Commands(), a.announce.Modals())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.applyCommandSync("", a.cfgm.Get().Discord.CommandSync)
	a.sched.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if every := sdnotify.WatchdogInterval(); every > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			a.notify.RunWatchdog(c, every, func() bool { return a.sup.Context().Err() == nil })
		})
	}
	a.notify.Ready()

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *Config) {
	a.notify.Reloading()
	defer a.notify.Ready()

	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if oldCfg.Discord.Token != newCfg.Discord.Token || oldCfg.Discord.GuildID != newCfg.Discord.GuildID {
		a.log.Warn("discord token/guild changed; restart required for changes to take effect")
	}

	ann, err := buildAnnounce(newCfg, a.adapter, a.log)
	if err != nil {
		a.log.Warn("invalid announce config; keeping previous", logx.Err(err))
	} else {
		if config.CommandsChanged(oldCfg, newCfg) {
			a.log.Info("slash command set changed; re-registering")
		}
		a.announce = ann
		a.cmdm.SetRegistry(ann.Commands(), ann.Modals())
	}

	a.applyCommandSync(oldCfg.Discord.CommandSync, newCfg.Discord.CommandSync)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyCommandSync (re)schedules the forced slash command re-sync.
func (a *App) applyCommandSync(oldSpec, newSpec string) {
	oldSpec, newSpec = strings.TrimSpace(oldSpec), strings.TrimSpace(newSpec)
	if oldSpec == newSpec && oldSpec != "" {
		return
	}
	a.sched.Remove(commandSyncJob)
	if newSpec == "" {
		return
	}
	err := a.sched.AddCron(commandSyncJob, newSpec, time.Minute, func(ctx context.Context) error {
		return a.cmdm.SyncCommands(ctx, true)
	})
	if err != nil {
		a.log.Warn("command sync not scheduled", logx.String("spec", newSpec), logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify.Stopping()

	a.sup.Cancel()

	// step runs a shutdown step bounded by max (never extending ctx).
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 5*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	for name, sup := range a.serv.RuntimeSupervisors.Snapshot() {
		if n := sup.Active(); n > 0 {
			a.log.Warn("supervisor still has active goroutines", logx.String("name", name), logx.Int64("active", n))
		}
	}

	a.log.Info("stopped")
	return a.logs.Close()
}
