package adapter

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	rtsup "labbot/internal/runtime/supervisor"
	kit "labbot/internal/transport"
	logx "labbot/pkg/logx"
)

type Config struct {
	Token string

	// GuildID scopes command registration ("" registers global commands).
	GuildID string
}

// session is the subset of *discordgo.Session used by the adapter.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()

	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)

	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)

	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

type Adapter struct {
	cfg Config
	log logx.Logger

	sess  session
	state *discordgo.State

	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns the gateway connection and the drop reporter.
	sup *rtsup.Supervisor

	// droppedUpdates counts interactions dropped because the consumer was
	// slower than the gateway. Reported periodically.
	droppedUpdates uint64

	appID     atomic.Value // string
	readyOnce sync.Once
	ready     chan struct{}

	cmdMu   sync.Mutex
	cmdHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	a := newAdapter(cfg, log, s, s.State)
	a.registerHandlers(s)
	return a, nil
}

func newAdapter(cfg Config, log logx.Logger, sess session, state *discordgo.State) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, sess: sess, state: state, ready: make(chan struct{})}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.appID.Store("")
	return a
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers(s session) {
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) { a.onReady(r) })
	s.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil {
			return
		}
		if up, ok := toUpdate(ic.Interaction); ok {
			a.sendUpdate(up)
		}
	})
}

func (a *Adapter) onReady(r *discordgo.Ready) {
	if r == nil {
		return
	}
	id := ""
	if r.Application != nil {
		id = r.Application.ID
	}
	if id == "" && r.User != nil {
		id = r.User.ID
	}
	if id == "" {
		return
	}
	a.appID.Store(id)
	a.readyOnce.Do(func() { close(a.ready) })

	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	a.log.Info("gateway ready", logx.String("user", name), logx.String("app_id", id), logx.Int("guilds", len(r.Guilds)))
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "discord.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	// discordgo reconnects on its own once open; the restart loop only
	// covers a failing initial handshake.
	sup.GoRestart("gateway", func(c context.Context) error {
		if err := a.sess.Open(); err != nil {
			return fmt.Errorf("open gateway: %w", err)
		}
		a.log.Info("gateway connected")
		<-c.Done()
		if err := a.sess.Close(); err != nil {
			a.log.Debug("gateway close", logx.Err(err))
		}
		a.log.Info("gateway disconnected")
		return nil
	},
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithPublishFirstError(true),
	)
	return nil
}

func (a *Adapter) reportDropped(chanCap int) {
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("incoming interactions dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", chanCap))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		a.log.Debug("discord stop called but not running")
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", atomic.LoadUint64(&a.droppedUpdates)))
	if sup == nil {
		return nil
	}

	grace := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Stop(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("discord stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("discord stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// SendText posts text as one channel message. Text over textLimit is
// rejected rather than split.
func (a *Adapter) SendText(ctx context.Context, channelID string, text string) (kit.MessageRef, error) {
	if strings.TrimSpace(channelID) == "" {
		return kit.MessageRef{}, errors.New("empty channel id")
	}
	if n := utf8.RuneCountInString(text); n > textLimit {
		return kit.MessageRef{}, fmt.Errorf("message is %d characters, over the %d limit", n, textLimit)
	}
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.sess.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, err
	}
	ref := kit.MessageRef{ChannelID: channelID}
	if msg != nil {
		ref.MessageID = msg.ID
	}
	return ref, nil
}

func (a *Adapter) ShowModal(ctx context.Context, in *kit.Interaction, m kit.Modal) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	return a.sess.InteractionRespond(raw, modalResponse(m), discordgo.WithContext(ctx))
}

func (a *Adapter) Defer(ctx context.Context, in *kit.Interaction, ephemeral bool) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: messageFlags(ephemeral)},
	}
	return a.sess.InteractionRespond(raw, resp, discordgo.WithContext(ctx))
}

// Respond answers an interaction that has not been acknowledged yet. Text
// over the message limit continues in followup messages.
func (a *Adapter) Respond(ctx context.Context, in *kit.Interaction, text string, ephemeral bool) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	chunks := splitText(text, textLimit)
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: chunks[0], Flags: messageFlags(ephemeral)},
	}
	if err := a.sess.InteractionRespond(raw, resp, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	return a.followups(ctx, raw, chunks[1:], ephemeral)
}

// EditResponse replaces the deferred response. The original response keeps
// its visibility; followups inherit it as well.
func (a *Adapter) EditResponse(ctx context.Context, in *kit.Interaction, text string) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	chunks := splitText(text, textLimit)
	content := chunks[0]
	if _, err := a.sess.InteractionResponseEdit(raw, &discordgo.WebhookEdit{Content: &content}, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	return a.followups(ctx, raw, chunks[1:], true)
}

func (a *Adapter) followups(ctx context.Context, raw *discordgo.Interaction, chunks []string, ephemeral bool) error {
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &discordgo.WebhookParams{Content: chunk, Flags: messageFlags(ephemeral)}
		if _, err := a.sess.FollowupMessageCreate(raw, true, params, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// Channels prefers the gateway state cache and falls back to REST.
func (a *Adapter) Channels(ctx context.Context, guildID string) ([]kit.Channel, error) {
	if guildID == "" {
		return nil, errors.New("empty guild id")
	}
	if chs, ok := a.cachedChannels(guildID); ok {
		return chs, nil
	}
	raw, err := a.sess.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", err)
	}
	return toChannels(raw), nil
}

func (a *Adapter) cachedChannels(guildID string) ([]kit.Channel, bool) {
	if a.state == nil {
		return nil, false
	}
	g, err := a.state.Guild(guildID)
	if err != nil || g == nil {
		return nil, false
	}
	a.state.RLock()
	defer a.state.RUnlock()
	if len(g.Channels) == 0 {
		return nil, false
	}
	return toChannels(g.Channels), true
}

// RegisterCommands overwrites the application's slash commands. Unless
// force is set, it is a no-op when the command set did not change since the
// last successful call.
func (a *Adapter) RegisterCommands(ctx context.Context, cmds []kit.SlashCommand, force bool) error {
	appID, err := a.waitAppID(ctx)
	if err != nil {
		return err
	}

	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()

	h := fnv.New64a()
	h.Write([]byte(a.cfg.GuildID))
	h.Write([]byte{0})
	for _, c := range cmds {
		h.Write([]byte(c.Name))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	if !force && sum == a.cmdHash {
		return nil
	}

	out, err := a.sess.ApplicationCommandBulkOverwrite(appID, a.cfg.GuildID, applicationCommands(cmds), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	a.cmdHash = sum
	a.log.Info("slash commands registered",
		logx.Int("count", len(out)),
		logx.String("guild_id", a.cfg.GuildID),
		logx.Bool("forced", force),
	)
	return nil
}

func (a *Adapter) waitAppID(ctx context.Context) (string, error) {
	select {
	case <-a.ready:
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for gateway ready: %w", ctx.Err())
	}
	id, _ := a.appID.Load().(string)
	if id == "" {
		return "", errors.New("application id unknown")
	}
	return id, nil
}

func rawInteraction(in *kit.Interaction) (*discordgo.Interaction, error) {
	if in == nil {
		return nil, errors.New("nil interaction")
	}
	raw, ok := in.Raw.(*discordgo.Interaction)
	if !ok || raw == nil {
		return nil, errors.New("interaction was not received from discord")
	}
	return raw, nil
}

func messageFlags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}
