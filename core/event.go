package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Internal event names. Transports deliver roster changes for presence
// channels under these names; they are never matched against listeners.
const (
	EventMemberAdded   = "eventcast:member_added"
	EventMemberRemoved = "eventcast:member_removed"
)

// Reserved event names used by Channel helpers.
const (
	NotificationEvent = `.Illuminate\Notifications\Events\BroadcastNotificationCreated`
	ClientEventPrefix = "client-"
)

// Event is an inbound event delivered by a transport for one channel.
type Event struct {
	// Channel is the full channel name, including any privilege prefix.
	Channel string

	// Name is the event name exactly as the transport delivered it.
	Name string

	// Data is the raw event payload.
	Data json.RawMessage

	// SocketID identifies the originating connection when known.
	SocketID string

	binder Binder
}

// Bind decodes the event payload into v using the connector's Binder.
func (e Event) Bind(v any) error {
	b := e.binder
	if b == nil {
		b = JSONBinder{}
	}
	if err := b.Bind(e.Data, v); err != nil {
		return fmt.Errorf("eventcast: bind %q: %w", e.Name, err)
	}
	return nil
}

// IsInternal reports whether name is a transport-internal event.
func IsInternal(name string) bool {
	return name == EventMemberAdded || name == EventMemberRemoved
}

// Listener receives events for a channel. Listeners run synchronously on the
// delivering goroutine and must hand off long-running work.
type Listener func(e Event)

// Middleware wraps a Listener to add cross-cutting behavior.
type Middleware func(Listener) Listener

// Member is one entry of a presence channel roster.
type Member struct {
	ID   string          `json:"user_id"`
	Info json.RawMessage `json:"user_info,omitempty"`
}

// UnmarshalJSON accepts both numeric and string user ids.
func (m *Member) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"user_id"`
		Info json.RawMessage `json:"user_info"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := bytes.TrimSpace(raw.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
		m.ID = ""
	case id[0] == '"':
		s, err := strconv.Unquote(string(id))
		if err != nil {
			return fmt.Errorf("eventcast: member id: %w", err)
		}
		m.ID = s
	default:
		m.ID = string(id)
	}
	m.Info = raw.Info
	return nil
}
