package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", `
discord:
  token: abc
  guild_id: "42"
logging:
  level: debug
  console: true
announce:
  category: "Labs [25T2]"
  concurrency: 3
`)
	cfg, err := NewConfigManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Discord.Token != "abc" || cfg.Discord.GuildID != "42" {
		t.Fatalf("discord = %+v", cfg.Discord)
	}
	if cfg.Announce.Category != "Labs [25T2]" || cfg.Announce.Concurrency != 3 {
		t.Fatalf("announce = %+v", cfg.Announce)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestParseYAMLRejectsNonStringKeys(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", "discord:\n  token: x\nannounce:\n  1: oops\n")
	_, err := NewConfigManager(p).Parse()
	if err == nil || !strings.Contains(err.Error(), "announce: key 1 is not a string") {
		t.Fatalf("err = %v, want non-string key error", err)
	}
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"discord":{"token":"x"},"telegram":{}}`)
	if _, err := NewConfigManager(p).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"discord":{"token":"x"}}{"discord":{}}`)
	_, err := NewConfigManager(p).Parse()
	if err == nil || !strings.Contains(err.Error(), "trailing data") {
		t.Fatalf("err = %v, want trailing data", err)
	}
}

func TestParseJSONTrailingInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"whitespace", "{\"discord\":{\"token\":\"x\"}}\n\n  ", false},
		{"second empty object", `{"discord":{"token":"x"}} {}`, true},
		{"scalar", `{"discord":{"token":"x"}} 1`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, t.TempDir(), "config.json", tt.body)
			_, err := NewConfigManager(p).Parse()
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "trailing data") {
					t.Fatalf("err = %v, want trailing data", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
		})
	}
}

func TestLoadCommitsConfig(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"discord":{"token":"x"}}`)
	m := NewConfigManager(p)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestWatchPublishesValidatedChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"discord":{"token":"x"},"announce":{"category":"A"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })

	sub := m.Subscribe(4)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to attach.
	time.Sleep(200 * time.Millisecond)

	// Invalid (bad command name) must be rejected, then a valid change published.
	writeFile(t, dir, "config.json", `{"discord":{"token":"x"},"announce":{"command":"Bad Name"}}`)
	time.Sleep(600 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"discord":{"token":"x"},"announce":{"category":"B"}}`)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-sub:
			if got.Announce.Command == "Bad Name" {
				t.Fatal("invalid config was published")
			}
			if got.Announce.Category == "B" {
				if m.Get().Announce.Category != "B" {
					t.Fatal("published config was not committed")
				}
				cancel()
				<-done
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config publish")
		}
	}
}
