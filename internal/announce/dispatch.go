package announce

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	logx "labbot/pkg/logx"
)

// Destination is a resolved message target.
type Destination struct {
	ID   string
	Name string
}

// DirectoryLookup resolves a lab key to its destination.
type DirectoryLookup interface {
	Lookup(ctx context.Context, key string) (Destination, bool)
}

// LookupFunc adapts a function to DirectoryLookup.
type LookupFunc func(ctx context.Context, key string) (Destination, bool)

func (f LookupFunc) Lookup(ctx context.Context, key string) (Destination, bool) { return f(ctx, key) }

// MessageSink delivers a message body to a destination.
type MessageSink interface {
	Send(ctx context.Context, dst Destination, body string) error
}

type Status int

const (
	Delivered Status = iota
	NotFound
	SendFailed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case NotFound:
		return "not_found"
	case SendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

// Outcome is the delivery result for one group.
type Outcome struct {
	Key    string
	Status Status
	Err    error // set for SendFailed
}

// Counts tallies outcomes by status.
func Counts(outcomes []Outcome) (delivered, notFound, failed int) {
	for _, o := range outcomes {
		switch o.Status {
		case Delivered:
			delivered++
		case NotFound:
			notFound++
		case SendFailed:
			failed++
		}
	}
	return
}

// ComposeBody renders the message sent to one destination. The header is
// always followed by a line break, even when empty.
func ComposeBody(header string, entries []string) string {
	return header + "\n" + strings.Join(entries, "\n")
}

// Dispatcher sends one message per group.
type Dispatcher struct {
	sink MessageSink
	log  logx.Logger

	// Concurrency is the number of groups processed at once (<=1: sequential).
	Concurrency int
}

func NewDispatcher(sink MessageSink, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{sink: sink, log: log, Concurrency: 1}
}

// Dispatch delivers every group and returns one outcome per group, in group
// order. Per-group failures never stop the remaining groups. Once ctx is done,
// groups not yet attempted are reported as SendFailed with the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, groups Groups, header string, dir DirectoryLookup) []Outcome {
	outcomes := make([]Outcome, len(groups))

	limit := d.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range groups {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, groups[i], header, dir)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, grp Group, header string, dir DirectoryLookup) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Key: grp.Key, Status: SendFailed, Err: err}
	}
	dst, ok := dir.Lookup(ctx, grp.Key)
	if !ok {
		d.log.Debug("destination not found", logx.String("lab", grp.Key))
		return Outcome{Key: grp.Key, Status: NotFound}
	}
	if err := d.sink.Send(ctx, dst, ComposeBody(header, grp.Entries)); err != nil {
		d.log.Warn("announce send failed",
			logx.String("lab", grp.Key),
			logx.String("channel_id", dst.ID),
			logx.Err(err),
		)
		return Outcome{Key: grp.Key, Status: SendFailed, Err: err}
	}
	d.log.Debug("announced",
		logx.String("lab", grp.Key),
		logx.String("channel_id", dst.ID),
		logx.Int("entries", len(grp.Entries)),
	)
	return Outcome{Key: grp.Key, Status: Delivered}
}
