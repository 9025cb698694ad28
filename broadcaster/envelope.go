package broadcaster

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/miladsoleymani/eventcast/core"
)

// Envelope is the JSON frame pub/sub style transports put on the wire.
type Envelope struct {
	Event    string          `json:"event"`
	Channel  string          `json:"channel"`
	Data     json.RawMessage `json:"data,omitempty"`
	SocketID string          `json:"socket_id,omitempty"`
}

// NewEnvelope encodes data as the envelope payload. json.RawMessage and
// []byte payloads must already hold JSON and are used as-is.
func NewEnvelope(channel, event, socketID string, data any) (Envelope, error) {
	raw, err := encodeData(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventcast: encode %q payload: %w", event, err)
	}
	return Envelope{Event: event, Channel: channel, Data: raw, SocketID: socketID}, nil
}

// Marshal encodes the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a wire frame.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("eventcast: decode envelope: %w", err)
	}
	return e, nil
}

// ToEvent converts the envelope into an inbound event.
func (e Envelope) ToEvent() core.Event {
	return core.Event{Channel: e.Channel, Name: e.Event, Data: e.Data, SocketID: e.SocketID}
}

// IsEcho reports whether a frame was produced by the given connection and
// should not be delivered back to it. Only client events and roster
// changes are suppressed; server events always go through.
func (e Envelope) IsEcho(socketID string) bool {
	if socketID == "" || e.SocketID != socketID {
		return false
	}
	return core.IsInternal(e.Event) || strings.HasPrefix(e.Event, core.ClientEventPrefix)
}

func encodeData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}
