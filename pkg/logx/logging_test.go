package logx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "labbot/internal/transport"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]string
	hit  chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: map[string][]string{}, hit: make(chan struct{}, 16)}
}

func (r *recordingSender) SendText(_ context.Context, channelID, text string) (kit.MessageRef, error) {
	r.mu.Lock()
	r.sent[channelID] = append(r.sent[channelID], text)
	r.mu.Unlock()
	select {
	case r.hit <- struct{}{}:
	default:
	}
	return kit.MessageRef{ChannelID: channelID, MessageID: "1"}, nil
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "trace", want: zerolog.TraceLevel},
		{in: " Debug ", want: zerolog.DebugLevel},
		{in: "INFO", want: zerolog.InfoLevel},
		{in: "warning", want: zerolog.WarnLevel},
		{in: "error", want: zerolog.ErrorLevel},
		{in: "bogus", want: zerolog.WarnLevel},
		{in: "", want: zerolog.WarnLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.WarnLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatDiscordJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"2026-01-01T00:00:00Z","message":"send failed","comp":"announce"}` + "\n")
	got := formatDiscordJSON(line)
	if !strings.HasPrefix(got, "[WARN] send failed") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "- comp=announce") {
		t.Fatalf("missing field: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time should be omitted: %q", got)
	}
}

func TestFormatDiscordJSONKeyOrder(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"info","message":"done","zeta":1,"alpha":"a","mid":true}`)
	got := formatDiscordJSON(line)
	want := "[INFO] done\n- alpha=a\n- mid=true\n- zeta=1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatDiscordJSONNotJSON(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 3*discordLogLimit)
	got := formatDiscordJSON([]byte(long))
	if len(got) != discordLogLimit {
		t.Fatalf("len = %d, want %d", len(got), discordLogLimit)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}
}

func TestNopLogger(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	l := Nop().With(String("comp", "test"))
	if l.IsZero() {
		t.Fatal("Nop logger should not be zero")
	}
	// must not panic
	l.Info("hello", Int("n", 1), Err(nil))
	zero.Warn("dropped")
}

func TestDiscordSinkHonorsMinLevel(t *testing.T) {
	sender := newRecordingSender()
	svc, log := New(Config{
		Level: "debug",
		Discord: DiscordConfig{
			Enabled:    true,
			ChannelID:  "123",
			MinLevel:   "warn",
			RatePerSec: 100,
		},
		File: FileConfig{Enabled: false},
	}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("below threshold")
	log.Error("boom", String("comp", "test"))

	select {
	case <-sender.hit:
	case <-time.After(2 * time.Second):
		t.Fatal("discord sink did not deliver")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	msgs := sender.sent["123"]
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "[ERROR] boom") {
		t.Fatalf("unexpected message: %q", msgs[0])
	}
}

func TestApplyRebindsExistingLoggers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}}, nil)
	t.Cleanup(func() { _ = svc.Close() })
	log = log.With(String("comp", "test"))

	log.Info("before reload")
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	log.Debug("filtered")
	log.Info("after reload")

	read := func(p string) string {
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		return string(b)
	}
	if got := read(first); !strings.Contains(got, "before reload") || strings.Contains(got, "after reload") {
		t.Fatalf("first file = %q", got)
	}
	got := read(second)
	if !strings.Contains(got, `"message":"after reload"`) || !strings.Contains(got, `"comp":"test"`) {
		t.Fatalf("second file = %q", got)
	}
	if strings.Contains(got, "filtered") {
		t.Fatalf("debug line written at info level: %q", got)
	}
}
