package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "labbot/internal/transport"
)

// Sender is the slice of the transport the Discord sink posts through.
type Sender interface {
	SendText(ctx context.Context, channelID string, text string) (kit.MessageRef, error)
}

// discordLogLimit leaves headroom under Discord's 2000 character message cap.
const discordLogLimit = 1900

const (
	sinkQueueSize   = 256
	sinkSendTimeout = 10 * time.Second
)

type sinkItem struct {
	channelID string
	text      string
}

// channelSink mirrors log lines at or above a level into a Discord channel.
// Lines are rate limited and dropped rather than blocking the caller.
type channelSink struct {
	sender Sender
	queue  chan sinkItem
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	channelID string
	minLevel  zerolog.Level
	limiter   *rate.Limiter
}

func startChannelSink(sender Sender) *channelSink {
	ctx, cancel := context.WithCancel(context.Background())
	cs := &channelSink{
		sender: sender,
		queue:  make(chan sinkItem, sinkQueueSize),
		cancel: cancel,
	}
	cs.wg.Add(1)
	go cs.run(ctx)
	return cs
}

// configure updates the target channel; an empty channel mutes the sink.
func (cs *channelSink) configure(cfg DiscordConfig) {
	rps := max(1, cfg.RatePerSec)
	cs.mu.Lock()
	cs.channelID = strings.TrimSpace(cfg.ChannelID)
	cs.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	cs.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	cs.mu.Unlock()
}

func (cs *channelSink) stop() {
	cs.cancel()
	cs.wg.Wait()
}

func (cs *channelSink) run(ctx context.Context) {
	defer cs.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-cs.queue:
			sctx, cancel := context.WithTimeout(ctx, sinkSendTimeout)
			_, _ = cs.sender.SendText(sctx, it.channelID, it.text)
			cancel()
		}
	}
}

func (cs *channelSink) Write(p []byte) (int, error) {
	return cs.WriteLevel(zerolog.InfoLevel, p)
}

func (cs *channelSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	cs.mu.Lock()
	channelID, minLevel, lim := cs.channelID, cs.minLevel, cs.limiter
	cs.mu.Unlock()

	if cs.sender == nil || channelID == "" || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	text := formatDiscordJSON(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case cs.queue <- sinkItem{channelID: channelID, text: text}:
	default:
	}
	return len(p), nil
}

var skipKeys = map[string]bool{"time": true, "level": true, "message": true, "stack": true}

// formatDiscordJSON renders a zerolog JSON line as "[LEVEL] message" followed
// by one "- key=value" line per field in key order.
func formatDiscordJSON(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return clip(string(p), discordLogLimit)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	for _, k := range slices.Sorted(maps.Keys(m)) {
		if skipKeys[k] {
			continue
		}
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(m[k]), 600))
	}
	if st, ok := m["stack"]; ok {
		b.WriteString("\n- stack=\n")
		b.WriteString(clip(fmt.Sprint(st), 900))
	}
	return clip(b.String(), discordLogLimit)
}

// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	if n < 10 {
		return string(rs[:n])
	}
	return string(rs[:n-3]) + "..."
}
