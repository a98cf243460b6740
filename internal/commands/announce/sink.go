package announce

import (
	"context"
	"fmt"
	"unicode/utf8"

	core "labbot/internal/announce"
	kit "labbot/internal/transport"
)

// ChannelSink delivers each announcement body as a single channel message.
// Bodies over MessageLimit fail without sending anything.
type ChannelSink struct {
	Adapter kit.Adapter
}

func (s ChannelSink) Send(ctx context.Context, dst core.Destination, body string) error {
	if n := utf8.RuneCountInString(body); n > MessageLimit {
		return fmt.Errorf("message is %d characters, over the %d limit", n, MessageLimit)
	}
	_, err := s.Adapter.SendText(ctx, dst.ID, body)
	return err
}
