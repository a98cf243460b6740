package transport

import "context"

type UpdateKind string

const (
	UpdateCommand     UpdateKind = "command"
	UpdateModalSubmit UpdateKind = "modal_submit"
)

type Update struct {
	Kind        UpdateKind
	Interaction *Interaction
}

// Interaction is a platform-neutral view of a slash command invocation or a
// modal submission.
type Interaction struct {
	ID        string
	GuildID   string // empty for direct messages
	ChannelID string
	UserID    string
	Username  string

	// Command is the invoked slash command name (UpdateCommand).
	Command string

	// CustomID and Fields are set for UpdateModalSubmit.
	// Fields maps text input custom ids to their submitted values.
	CustomID string
	Fields   map[string]string

	// Raw is the adapter-specific interaction (Discord: *discordgo.Interaction).
	Raw any
}

// Field returns the submitted value of a modal text input ("" if absent).
func (in *Interaction) Field(customID string) string {
	if in == nil || in.Fields == nil {
		return ""
	}
	return in.Fields[customID]
}

type ChannelKind int

const (
	ChannelOther ChannelKind = iota
	ChannelText
	ChannelCategory
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelText:
		return "text"
	case ChannelCategory:
		return "category"
	default:
		return "other"
	}
}

// Channel is a read-only snapshot of a guild channel.
type Channel struct {
	ID       string
	Name     string
	ParentID string // category id ("" when top-level)
	Kind     ChannelKind
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

// Modal is a form with one text input per row.
type Modal struct {
	CustomID string
	Title    string
	Fields   []TextField
}

type TextField struct {
	CustomID    string
	Label       string
	Placeholder string
	Paragraph   bool
	Required    bool
	MaxLength   int
}

// SlashCommand is an argument-less application command.
type SlashCommand struct {
	Name        string
	Description string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, channelID string, text string) (MessageRef, error)

	ShowModal(ctx context.Context, in *Interaction, m Modal) error
	Defer(ctx context.Context, in *Interaction, ephemeral bool) error
	Respond(ctx context.Context, in *Interaction, text string, ephemeral bool) error
	EditResponse(ctx context.Context, in *Interaction, text string) error

	// Channels returns the current channel list of a guild.
	Channels(ctx context.Context, guildID string) ([]Channel, error)
}

// CommandRegistrar is an optional interface that adapters can implement
// to publish slash commands to the platform.
type CommandRegistrar interface {
	RegisterCommands(ctx context.Context, cmds []SlashCommand, force bool) error
}
