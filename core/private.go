package core

import (
	"context"
	"fmt"
)

// PrivateChannel is a Channel whose subscription was authorized, adding
// client events.
type PrivateChannel struct {
	*Channel
}

// Whisper publishes a client event to the other subscribers of the channel.
// The event is delivered to them as "client-<event>". Transports without
// client events turn this into a logged no-op.
func (p *PrivateChannel) Whisper(ctx context.Context, event string, data any) error {
	sub := p.subscription()
	if sub == nil {
		return ErrNotSubscribed
	}

	err := sub.Trigger(ctx, ClientEventPrefix+event, data)
	if IsUnsupported(err) {
		p.connector.logger.Warn("whisper dropped",
			"channel", p.name, "event", event, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("eventcast: whisper %q on %q: %w", event, p.name, err)
	}
	return nil
}
