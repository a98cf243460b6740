// Package announce wires the announce flow into the router: the slash
// command opens a modal, and the modal submission fans the parsed lab
// data out to the lab channels.
package announce

import (
	"context"
	"fmt"
	"time"

	core "labbot/internal/announce"
	kit "labbot/internal/transport"
	"labbot/internal/transport/discord/router"
	logx "labbot/pkg/logx"
)

const (
	ModalID      = "announce-modal"
	FieldMessage = "announce-message"
	FieldData    = "rff-lab-data"

	modalTitle   = "Announce No. RFF Tasks"
	labelMessage = "Announcement Message"
	labelData    = "Data [Lab]-[Group] - [No. RFF Tasks]"
)

// Every lab message is the header, a line break and a subset of the data
// lines, so these caps keep it inside one Discord message.
const (
	MessageLimit  = 2000
	MaxMessageLen = 400
	MaxDataLen    = MessageLimit - MaxMessageLen - 1
)

// Announcer runs one announcement.
type Announcer interface {
	Announce(ctx context.Context, req core.Request) (core.Report, error)
}

type Options struct {
	Name        string
	Description string
	Timeout     time.Duration
}

type Command struct {
	svc  Announcer
	opts Options
	log  logx.Logger
}

func New(svc Announcer, opts Options, log logx.Logger) *Command {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Command{svc: svc, opts: opts, log: log}
}

// Modal is the form shown by the slash command.
func Modal() kit.Modal {
	return kit.Modal{
		CustomID: ModalID,
		Title:    modalTitle,
		Fields: []kit.TextField{
			{CustomID: FieldMessage, Label: labelMessage, Paragraph: true, MaxLength: MaxMessageLen},
			{CustomID: FieldData, Label: labelData, Paragraph: true, Required: true, MaxLength: MaxDataLen},
		},
	}
}

func (c *Command) Commands() []router.Command {
	o := c.opts
	return []router.Command{{
		Name:        o.Name,
		Description: o.Description,
		Handle: func(ctx context.Context, req *router.Request) error {
			return req.Adapter.ShowModal(ctx, req.Interaction, Modal())
		},
	}}
}

func (c *Command) Modals() []router.ModalRoute {
	return []router.ModalRoute{{
		CustomID: ModalID,
		Timeout:  c.opts.Timeout,
		Handle:   c.handleSubmit,
	}}
}

func (c *Command) handleSubmit(ctx context.Context, req *router.Request) error {
	in := req.Interaction
	if err := req.Adapter.Defer(ctx, in, true); err != nil {
		return fmt.Errorf("defer reply: %w", err)
	}

	rep, err := c.svc.Announce(ctx, core.Request{
		GuildID: in.GuildID,
		Header:  in.Field(FieldMessage),
		Data:    in.Field(FieldData),
	})

	log := req.Logger
	if log.IsZero() {
		log = c.log
	}
	var reply string
	if err != nil {
		reply = core.ReplyText(err)
		log.Warn("announce aborted", logx.Err(err))
	} else {
		reply = rep.Summary()
		delivered, notFound, failed := core.Counts(rep.Outcomes)
		log.Info("announce finished",
			logx.Int("labs", len(rep.Outcomes)),
			logx.Any("lab_keys", rep.Groups.Keys()),
			logx.Int("entries", rep.Groups.Entries()),
			logx.Int("delivered", delivered),
			logx.Int("not_found", notFound),
			logx.Int("failed", failed),
		)
	}

	// The reply must go out even when the handler deadline has passed.
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := req.Adapter.EditResponse(ectx, in, reply); err != nil {
		return fmt.Errorf("edit reply: %w", err)
	}
	return nil
}
