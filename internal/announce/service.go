package announce

import (
	"context"
	"fmt"
	"strings"

	kit "labbot/internal/transport"
	logx "labbot/pkg/logx"
)

// ChannelDirectory lists the channels of a guild.
type ChannelDirectory interface {
	Channels(ctx context.Context, guildID string) ([]kit.Channel, error)
}

// Request is one modal submission.
type Request struct {
	GuildID string
	Header  string
	Data    string
}

// Report is the result of a completed announcement.
type Report struct {
	Groups   Groups
	Outcomes []Outcome
}

// Summary renders the report for the invoking user.
func (r Report) Summary() string { return Summarize(r.Outcomes) }

type Service struct {
	dir      ChannelDirectory
	dispatch *Dispatcher
	category string
	log      logx.Logger
}

func NewService(dir ChannelDirectory, dispatch *Dispatcher, category string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{dir: dir, dispatch: dispatch, category: category, log: log}
}

func (s *Service) Category() string { return s.category }

// Announce resolves the category scope, then dispatches every parsed group.
// Only scope-level failures (ErrScopeUnresolved, ErrCategoryNotFound) are
// returned as errors; per-group failures are part of the report.
func (s *Service) Announce(ctx context.Context, req Request) (Report, error) {
	groups := ParseGroups(req.Data)

	guildID := strings.TrimSpace(req.GuildID)
	if guildID == "" {
		return Report{Groups: groups}, ErrScopeUnresolved
	}
	channels, err := s.dir.Channels(ctx, guildID)
	if err != nil {
		return Report{Groups: groups}, fmt.Errorf("%w: %v", ErrScopeUnresolved, err)
	}
	category, ok := FindCategory(channels, s.category)
	if !ok {
		return Report{Groups: groups}, &CategoryNotFoundError{Name: s.category}
	}

	s.log.Debug("announce scope resolved",
		logx.String("guild_id", guildID),
		logx.String("category_id", category.ID),
		logx.Int("groups", len(groups)),
		logx.Int("entries", groups.Entries()),
	)

	outcomes := s.dispatch.Dispatch(ctx, groups, req.Header, ChannelIndex(channels, category.ID))
	return Report{Groups: groups, Outcomes: outcomes}, nil
}

// FindCategory returns the category channel with exactly the given name.
func FindCategory(channels []kit.Channel, name string) (kit.Channel, bool) {
	for _, c := range channels {
		if c.Kind == kit.ChannelCategory && c.Name == name {
			return c, true
		}
	}
	return kit.Channel{}, false
}

// ChannelIndex returns a lookup over the text channels inside categoryID.
// Names match case-insensitively; the first match in channel order wins.
func ChannelIndex(channels []kit.Channel, categoryID string) DirectoryLookup {
	idx := map[string]Destination{}
	for _, c := range channels {
		if c.Kind != kit.ChannelText || c.ParentID != categoryID {
			continue
		}
		key := strings.ToLower(c.Name)
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = Destination{ID: c.ID, Name: c.Name}
	}
	return LookupFunc(func(_ context.Context, key string) (Destination, bool) {
		d, ok := idx[strings.ToLower(key)]
		return d, ok
	})
}
