package announce

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	core "labbot/internal/announce"
	kit "labbot/internal/transport"
	"labbot/internal/transport/discord/router"
	logx "labbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	channels []kit.Channel
	sent     map[string][]string
	modals   []kit.Modal
	deferred []bool
	edits    []string
	sendErr  error
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, channelID, text string) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return kit.MessageRef{}, f.sendErr
	}
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	f.sent[channelID] = append(f.sent[channelID], text)
	return kit.MessageRef{ChannelID: channelID}, nil
}

func (f *fakeAdapter) ShowModal(_ context.Context, _ *kit.Interaction, m kit.Modal) error {
	f.modals = append(f.modals, m)
	return nil
}

func (f *fakeAdapter) Defer(_ context.Context, _ *kit.Interaction, ephemeral bool) error {
	f.deferred = append(f.deferred, ephemeral)
	return nil
}

func (f *fakeAdapter) Respond(context.Context, *kit.Interaction, string, bool) error { return nil }

func (f *fakeAdapter) EditResponse(_ context.Context, _ *kit.Interaction, text string) error {
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) Channels(context.Context, string) ([]kit.Channel, error) {
	return f.channels, nil
}

func newCommand(ad *fakeAdapter, category string) *Command {
	d := core.NewDispatcher(ChannelSink{Adapter: ad}, logx.Nop())
	svc := core.NewService(ad, d, category, logx.Nop())
	return New(svc, Options{Name: "announce", Description: "Announce"}, logx.Nop())
}

func submit(ad *fakeAdapter, header, data string) *router.Request {
	in := &kit.Interaction{
		GuildID:  "g1",
		CustomID: ModalID,
		Fields:   map[string]string{FieldMessage: header, FieldData: data},
	}
	return &router.Request{
		Update:      kit.Update{Kind: kit.UpdateModalSubmit, Interaction: in},
		Interaction: in,
		GuildID:     "g1",
		Adapter:     ad,
		Logger:      logx.Nop(),
	}
}

func labChannels() []kit.Channel {
	return []kit.Channel{
		{ID: "cat", Name: "Labs [25T2]", Kind: kit.ChannelCategory},
		{ID: "t-a1", Name: "a1", ParentID: "cat", Kind: kit.ChannelText},
	}
}

func TestSlashCommandShowsModal(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	c := newCommand(ad, "Labs [25T2]")
	cmds := c.Commands()
	if len(cmds) != 1 || cmds[0].Name != "announce" {
		t.Fatalf("Commands() = %+v", cmds)
	}
	in := &kit.Interaction{Command: "announce"}
	if err := cmds[0].Handle(context.Background(), &router.Request{Interaction: in, Adapter: ad}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if diff := cmp.Diff([]kit.Modal{Modal()}, ad.modals); diff != "" {
		t.Fatalf("modal mismatch (-want +got):\n%s", diff)
	}
}

func TestModalFields(t *testing.T) {
	t.Parallel()
	m := Modal()
	if m.Title != "Announce No. RFF Tasks" || len(m.Fields) != 2 {
		t.Fatalf("unexpected modal: %+v", m)
	}
	msg, data := m.Fields[0], m.Fields[1]
	if msg.CustomID != FieldMessage || msg.Required || !msg.Paragraph {
		t.Fatalf("message field: %+v", msg)
	}
	if data.CustomID != FieldData || !data.Required || !data.Paragraph || data.Label != "Data [Lab]-[Group] - [No. RFF Tasks]" {
		t.Fatalf("data field: %+v", data)
	}
}

func TestModalFieldsFitOneMessage(t *testing.T) {
	t.Parallel()
	m := Modal()
	msg, data := m.Fields[0].MaxLength, m.Fields[1].MaxLength
	if msg <= 0 || data <= 0 {
		t.Fatalf("fields must be capped: message=%d data=%d", msg, data)
	}
	if msg+1+data > MessageLimit {
		t.Fatalf("message(%d) + newline + data(%d) exceeds %d", msg, data, MessageLimit)
	}
}

func TestSubmitRejectsOversizedBodyWithoutSending(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{channels: labChannels()}
	c := newCommand(ad, "Labs [25T2]")

	data := "A1-G1 - " + strings.Repeat("9", MessageLimit)
	if err := c.Modals()[0].Handle(context.Background(), submit(ad, "Reminder:", data)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(ad.sent) != 0 {
		t.Fatalf("sent = %v, want nothing", ad.sent)
	}
	if len(ad.edits) != 1 || !strings.HasPrefix(ad.edits[0], "⚠️ Failed to announce to #a1: message is 2018 characters") {
		t.Fatalf("reply = %q", ad.edits)
	}
}

func TestChannelSinkSendsBodyAtLimit(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	body := strings.Repeat("é", MessageLimit)
	if err := (ChannelSink{Adapter: ad}).Send(context.Background(), core.Destination{ID: "c1"}, body); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := ad.sent["c1"]; len(got) != 1 || got[0] != body {
		t.Fatalf("sent %d messages, want exactly one", len(got))
	}
}

func TestSubmitAnnouncesAndSummarizes(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{channels: labChannels()}
	c := newCommand(ad, "Labs [25T2]")

	err := c.Modals()[0].Handle(context.Background(), submit(ad, "Reminder:", "A1-G1 - 3\nA1-G2 - 2\nB1-G1 - 1"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if diff := cmp.Diff([]bool{true}, ad.deferred); diff != "" {
		t.Fatalf("deferred mismatch (-want +got):\n%s", diff)
	}
	wantSent := map[string][]string{"t-a1": {"Reminder:\nA1-G1 - 3\nA1-G2 - 2"}}
	if diff := cmp.Diff(wantSent, ad.sent); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
	want := []string{"✅ Announced to #a1\n❌ Channel #b1 not found.\n\nTotal Labs: 2"}
	if diff := cmp.Diff(want, ad.edits); diff != "" {
		t.Fatalf("reply mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitCategoryMissing(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{channels: labChannels()}
	c := newCommand(ad, "Labs [26T1]")

	if err := c.Modals()[0].Handle(context.Background(), submit(ad, "", "A1-G1 - 3")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := []string{`Error: could not find category "Labs [26T1]".`}
	if diff := cmp.Diff(want, ad.edits); diff != "" {
		t.Fatalf("reply mismatch (-want +got):\n%s", diff)
	}
	if len(ad.sent) != 0 {
		t.Fatalf("sent = %v, want none", ad.sent)
	}
}

func TestSubmitReportsSendFailure(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{channels: labChannels(), sendErr: errors.New("Missing Permissions")}
	c := newCommand(ad, "Labs [25T2]")

	if err := c.Modals()[0].Handle(context.Background(), submit(ad, "", "A1-G1 - 3")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := []string{"⚠️ Failed to announce to #a1: Missing Permissions\n\nTotal Labs: 1"}
	if diff := cmp.Diff(want, ad.edits); diff != "" {
		t.Fatalf("reply mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitLogsLabKeys(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "announce.log")
	logs, log := logx.New(logx.Config{Level: "info", File: logx.FileConfig{Enabled: true, Path: logPath}}, nil)
	t.Cleanup(func() { _ = logs.Close() })

	ad := &fakeAdapter{channels: labChannels()}
	c := newCommand(ad, "Labs [25T2]")
	req := submit(ad, "", "B1-G1 - 1\nA1-G1 - 3")
	req.Logger = log

	if err := c.Modals()[0].Handle(context.Background(), req); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"lab_keys":["b1","a1"]`) {
		t.Fatalf("log missing ordered lab keys: %s", b)
	}
}
