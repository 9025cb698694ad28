package socket

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

// Protocol event names.
const (
	eventConnected    = "connected"
	eventSubscribe    = "subscribe"
	eventUnsubscribe  = "unsubscribe"
	eventSucceeded    = "subscription_succeeded"
	eventError        = "subscription_error"
	eventMemberAdded  = "member_added"
	eventMemberRemove = "member_removed"
)

// frame is one JSON WebSocket message in either direction.
type frame struct {
	Event       string          `json:"event"`
	Channel     string          `json:"channel,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Auth        string          `json:"auth,omitempty"`
	ChannelData string          `json:"channel_data,omitempty"`
	SocketID    string          `json:"socket_id,omitempty"`
}

func (f frame) envelope() broadcaster.Envelope {
	return broadcaster.Envelope{Event: f.Event, Channel: f.Channel, Data: f.Data, SocketID: f.SocketID}
}

// subscribeError is the payload of a subscription_error frame.
type subscribeError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// err converts a subscription_error frame into a typed error.
func (f frame) err() error {
	var se subscribeError
	_ = json.Unmarshal(f.Data, &se)
	cause := &serverError{msg: se.Error}
	if se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden {
		return &core.AuthorizationError{Channel: f.Channel, Status: se.Status, Err: cause}
	}
	return &core.TransportError{Op: "subscribe " + f.Channel, Err: cause}
}

type serverError struct{ msg string }

func (e *serverError) Error() string {
	if strings.TrimSpace(e.msg) == "" {
		return "rejected by server"
	}
	return e.msg
}

// internalName maps protocol roster events to core internal events.
func internalName(event string) (string, bool) {
	switch event {
	case eventMemberAdded:
		return core.EventMemberAdded, true
	case eventMemberRemove:
		return core.EventMemberRemoved, true
	}
	return "", false
}
