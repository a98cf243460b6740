package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	kit "labbot/internal/transport"
	logx "labbot/pkg/logx"
)

const (
	replyUnknownCommand = "unknown command"
	replyUnknownForm    = "unknown form"
	replyBusy           = "busy, try again"
)

// Command is a slash command without options.
type Command struct {
	Name        string
	Description string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// ModalRoute handles submissions of the modal with CustomID.
type ModalRoute struct {
	CustomID string
	Timeout  time.Duration
	Handle   HandlerFunc
}

type Request struct {
	Update      kit.Update
	Interaction *kit.Interaction
	GuildID     string
	UserID      string
	Command     string // slash command name or "modal:<custom id>"
	ReqID       string

	Adapter kit.Adapter
	Config  *Config
	Logger  logx.Logger
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return fallback
}

type Services struct {
	// AppSupervisor is set by the app once started. It can be nil in tests.
	AppSupervisor *Supervisor

	// RuntimeSupervisors exposes subsystem supervisors (adapter, router).
	RuntimeSupervisors *SupervisorRegistry
}

type CommandManager struct {
	mu     sync.RWMutex
	cmds   map[string]Command
	modals map[string]ModalRoute

	log     logx.Logger
	adapter kit.Adapter
	cfgm    *ConfigManager
	serv    *Services

	runMu   sync.Mutex
	running bool
	sup     *Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfgm *ConfigManager, serv *Services) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if serv == nil {
		serv = &Services{}
	}
	return &CommandManager{
		cmds:    map[string]Command{},
		modals:  map[string]ModalRoute{},
		log:     log,
		adapter: adapter,
		cfgm:    cfgm,
		serv:    serv,
		jobs:    make(chan func(), 256),
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *CommandManager) Supervisor() *Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue handles the jobs channel being closed.
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// SetRegistry replaces the routing tables and publishes the slash commands
// when the adapter supports it. Safe to call during hot-reload.
func (m *CommandManager) SetRegistry(cmds []Command, modals []ModalRoute) {
	cm := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := strings.TrimSpace(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		cm[name] = c
	}
	mm := make(map[string]ModalRoute, len(modals))
	for _, r := range modals {
		id := strings.TrimSpace(r.CustomID)
		if id == "" || r.Handle == nil {
			continue
		}
		mm[id] = r
	}

	m.mu.Lock()
	m.cmds = cm
	m.modals = mm
	m.mu.Unlock()

	m.publishCommands(false)
}

// SlashCommands returns the registered commands sorted by name.
func (m *CommandManager) SlashCommands() []kit.SlashCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]kit.SlashCommand, 0, len(m.cmds))
	for _, c := range m.cmds {
		out = append(out, kit.SlashCommand{Name: c.Name, Description: c.Description})
	}
	slices.SortFunc(out, func(a, b kit.SlashCommand) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// SyncCommands publishes the slash commands now. force bypasses the
// adapter's unchanged-set check.
func (m *CommandManager) SyncCommands(ctx context.Context, force bool) error {
	reg, ok := m.adapter.(kit.CommandRegistrar)
	if !ok {
		return nil
	}
	return reg.RegisterCommands(ctx, m.SlashCommands(), force)
}

func (m *CommandManager) publishCommands(force bool) {
	if _, ok := m.adapter.(kit.CommandRegistrar); !ok {
		return
	}
	run := func(parent context.Context) {
		// Registration waits for the gateway to become ready.
		ctx, cancel := context.WithTimeout(parent, time.Minute)
		defer cancel()
		if err := m.SyncCommands(ctx, force); err != nil {
			m.log.Warn("slash command registration failed", logx.Err(err))
		}
	}
	sup := m.serv.AppSupervisor
	if sup == nil {
		m.log.Debug("slash command registration deferred: app not started")
		return
	}
	sup.Go0("discord.commands.register", run)
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := NewSupervisor(ctx,
		WithLogger(m.log.With(logx.String("comp", "discord.router"))),
		WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.serv.RuntimeSupervisors.Set("discord.router", sup)

	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			m.log.Debug("command worker started", logx.Int("worker", idx))
			defer m.log.Debug("command worker stopped", logx.Int("worker", idx))
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			WithPublishFirstError(true),
			WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.serv.RuntimeSupervisors.Delete("discord.router")
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	in := up.Interaction
	if in == nil {
		return
	}
	switch up.Kind {
	case kit.UpdateCommand:
		m.mu.RLock()
		cmd, ok := m.cmds[in.Command]
		m.mu.RUnlock()
		if !ok {
			m.reject(root, in, replyUnknownCommand)
			return
		}
		m.enqueue(root, up, cmd.Name, cmd.Timeout, cmd.Handle)
	case kit.UpdateModalSubmit:
		m.mu.RLock()
		route, ok := m.modals[in.CustomID]
		m.mu.RUnlock()
		if !ok {
			m.reject(root, in, replyUnknownForm)
			return
		}
		m.enqueue(root, up, "modal:"+route.CustomID, route.Timeout, route.Handle)
	}
}

func (m *CommandManager) enqueue(root context.Context, up kit.Update, name string, timeout time.Duration, h HandlerFunc) {
	in := up.Interaction
	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.String("guild_id", in.GuildID),
		logx.String("user_id", in.UserID),
		logx.String("cmd", name),
	)

	var cfg *Config
	if m.cfgm != nil {
		cfg = m.cfgm.Get()
	}
	req := &Request{
		Update:      up,
		Interaction: in,
		GuildID:     in.GuildID,
		UserID:      in.UserID,
		Command:     name,
		ReqID:       rid,
		Adapter:     m.adapter,
		Config:      cfg,
		Logger:      reqLog,
	}

	final := Chain(
		h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		m.reject(root, in, replyBusy)
	}
}

func (m *CommandManager) reject(ctx context.Context, in *kit.Interaction, text string) {
	if err := m.adapter.Respond(ctx, in, text, true); err != nil {
		m.log.Debug("reject reply failed", logx.String("reply", text), logx.Err(err))
	}
}

func newReqID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
