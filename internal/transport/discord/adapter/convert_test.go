package adapter

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	kit "labbot/internal/transport"
)

func TestToUpdateCommand(t *testing.T) {
	t.Parallel()
	raw := &discordgo.Interaction{
		ID:        "i1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "tutor"}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: "announce"},
	}
	up, ok := toUpdate(raw)
	if !ok {
		t.Fatal("command interaction should map")
	}
	if up.Kind != kit.UpdateCommand {
		t.Fatalf("kind = %q", up.Kind)
	}
	in := up.Interaction
	if in.Command != "announce" || in.GuildID != "g1" || in.UserID != "u1" || in.Username != "tutor" {
		t.Fatalf("unexpected interaction: %+v", in)
	}
	if in.Raw != raw {
		t.Fatal("raw interaction should be kept for replies")
	}
}

func TestToUpdateModalSubmit(t *testing.T) {
	t.Parallel()
	raw := &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit,
		User: &discordgo.User{ID: "u2", Username: "dm-user"},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: "announce-modal",
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: "announce-message", Value: "Reminder:"},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "rff-lab-data", Value: "A1-G1 - 3"},
				}},
			},
		},
	}
	up, ok := toUpdate(raw)
	if !ok || up.Kind != kit.UpdateModalSubmit {
		t.Fatalf("toUpdate() = %+v, %v", up, ok)
	}
	want := map[string]string{"announce-message": "Reminder:", "rff-lab-data": "A1-G1 - 3"}
	if diff := cmp.Diff(want, up.Interaction.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if up.Interaction.CustomID != "announce-modal" || up.Interaction.UserID != "u2" {
		t.Fatalf("unexpected interaction: %+v", up.Interaction)
	}
}

func TestToUpdateIgnoresOtherKinds(t *testing.T) {
	t.Parallel()
	if _, ok := toUpdate(&discordgo.Interaction{Type: discordgo.InteractionPing}); ok {
		t.Fatal("ping should be ignored")
	}
	if _, ok := toUpdate(nil); ok {
		t.Fatal("nil should be ignored")
	}
}

func TestToChannels(t *testing.T) {
	t.Parallel()
	got := toChannels([]*discordgo.Channel{
		{ID: "cat", Name: "Labs [25T2]", Type: discordgo.ChannelTypeGuildCategory},
		{ID: "t1", Name: "a1", ParentID: "cat", Type: discordgo.ChannelTypeGuildText},
		nil,
		{ID: "v1", Name: "voice", ParentID: "cat", Type: discordgo.ChannelTypeGuildVoice},
	})
	want := []kit.Channel{
		{ID: "cat", Name: "Labs [25T2]", Kind: kit.ChannelCategory},
		{ID: "t1", Name: "a1", ParentID: "cat", Kind: kit.ChannelText},
		{ID: "v1", Name: "voice", ParentID: "cat", Kind: kit.ChannelOther},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("channels mismatch (-want +got):\n%s", diff)
	}
}

func TestModalResponse(t *testing.T) {
	t.Parallel()
	resp := modalResponse(kit.Modal{
		CustomID: "announce-modal",
		Title:    "Announce No. RFF Tasks",
		Fields: []kit.TextField{
			{CustomID: "announce-message", Label: "Announcement Message", Paragraph: true, Required: true},
			{CustomID: "short", Label: "Short"},
		},
	})
	if resp.Type != discordgo.InteractionResponseModal {
		t.Fatalf("type = %v", resp.Type)
	}
	if resp.Data.CustomID != "announce-modal" || resp.Data.Title != "Announce No. RFF Tasks" {
		t.Fatalf("unexpected data: %+v", resp.Data)
	}
	if len(resp.Data.Components) != 2 {
		t.Fatalf("rows = %d, want 2", len(resp.Data.Components))
	}
	row := resp.Data.Components[0].(discordgo.ActionsRow)
	in := row.Components[0].(discordgo.TextInput)
	if in.Style != discordgo.TextInputParagraph || !in.Required || in.Label != "Announcement Message" {
		t.Fatalf("unexpected input: %+v", in)
	}
	short := resp.Data.Components[1].(discordgo.ActionsRow).Components[0].(discordgo.TextInput)
	if short.Style != discordgo.TextInputShort {
		t.Fatalf("style = %v, want short", short.Style)
	}
}

func TestApplicationCommands(t *testing.T) {
	t.Parallel()
	got := applicationCommands([]kit.SlashCommand{{Name: "announce"}, {Name: ""}})
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1", len(got))
	}
	if got[0].Description != "announce" || got[0].Type != discordgo.ChatApplicationCommand {
		t.Fatalf("unexpected command: %+v", got[0])
	}
}
