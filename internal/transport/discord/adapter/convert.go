package adapter

import (
	"github.com/bwmarrin/discordgo"

	kit "labbot/internal/transport"
)

// toUpdate maps the interactions the bot handles. Pings, autocomplete and
// component clicks are ignored.
func toUpdate(i *discordgo.Interaction) (kit.Update, bool) {
	if i == nil {
		return kit.Update{}, false
	}
	in := &kit.Interaction{
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Raw:       i,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		in.UserID, in.Username = i.Member.User.ID, i.Member.User.Username
	case i.User != nil:
		in.UserID, in.Username = i.User.ID, i.User.Username
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		in.Command = i.ApplicationCommandData().Name
		return kit.Update{Kind: kit.UpdateCommand, Interaction: in}, true
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		in.CustomID = data.CustomID
		in.Fields = modalFields(data.Components)
		return kit.Update{Kind: kit.UpdateModalSubmit, Interaction: in}, true
	default:
		return kit.Update{}, false
	}
}

// modalFields flattens submitted text inputs by custom id.
func modalFields(components []discordgo.MessageComponent) map[string]string {
	out := map[string]string{}
	var walk func(cs []discordgo.MessageComponent)
	walk = func(cs []discordgo.MessageComponent) {
		for _, c := range cs {
			switch v := c.(type) {
			case *discordgo.ActionsRow:
				if v != nil {
					walk(v.Components)
				}
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				if v != nil {
					out[v.CustomID] = v.Value
				}
			case discordgo.TextInput:
				out[v.CustomID] = v.Value
			}
		}
	}
	walk(components)
	return out
}

func toChannels(in []*discordgo.Channel) []kit.Channel {
	out := make([]kit.Channel, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, toChannel(c))
	}
	return out
}

func toChannel(c *discordgo.Channel) kit.Channel {
	kind := kit.ChannelOther
	switch c.Type {
	case discordgo.ChannelTypeGuildText:
		kind = kit.ChannelText
	case discordgo.ChannelTypeGuildCategory:
		kind = kit.ChannelCategory
	}
	return kit.Channel{ID: c.ID, Name: c.Name, ParentID: c.ParentID, Kind: kind}
}

func applicationCommands(cmds []kit.SlashCommand) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.Name == "" {
			continue
		}
		desc := c.Description
		if desc == "" {
			desc = c.Name
		}
		out = append(out, &discordgo.ApplicationCommand{
			Name:        c.Name,
			Description: desc,
			Type:        discordgo.ChatApplicationCommand,
		})
	}
	return out
}

func modalResponse(m kit.Modal) *discordgo.InteractionResponse {
	rows := make([]discordgo.MessageComponent, 0, len(m.Fields))
	for _, f := range m.Fields {
		style := discordgo.TextInputShort
		if f.Paragraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    f.CustomID,
				Label:       f.Label,
				Style:       style,
				Placeholder: f.Placeholder,
				Required:    f.Required,
				MaxLength:   f.MaxLength,
			},
		}})
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   m.CustomID,
			Title:      m.Title,
			Components: rows,
		},
	}
}
