// Package null provides a transport that never touches the network.
// Inbound events are synthesized with Emit, Join and Part, which makes it
// the transport of choice for tests and for disabling broadcasting.
package null

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

func init() {
	broadcaster.Register("null", func(cfg broadcaster.Config) (core.Transport, error) {
		return New(optsFromConfig(cfg)...), nil
	})
}

// Transport implements core.Transport in memory.
type Transport struct {
	opts options

	mu       sync.Mutex
	in       core.Inbound
	socketID string
	subs     map[string]*subscription
	rosters  map[string]map[string]core.Member
	whispers []Whisper
}

// Whisper records a client event sent through the null transport.
type Whisper struct {
	Channel string
	Event   string
	Data    json.RawMessage
}

var _ core.Transport = (*Transport)(nil)

// New creates a null transport.
func New(fns ...Option) *Transport {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Transport{
		opts:    opts,
		subs:    make(map[string]*subscription),
		rosters: make(map[string]map[string]core.Member),
	}
}

func (t *Transport) Open(_ context.Context, in core.Inbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.socketID != "" {
		return nil
	}
	t.in = in
	t.socketID = uuid.NewString()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.socketID = ""
	t.subs = make(map[string]*subscription)
	return nil
}

func (t *Transport) SocketID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socketID
}

func (t *Transport) Subscribe(_ context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	for _, p := range t.opts.rejects {
		if t.opts.matcher.Match(p, req.Channel) {
			return nil, &core.AuthorizationError{Channel: req.Channel, Status: http.StatusForbidden}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.socketID == "" {
		return nil, core.ErrTransportClosed
	}

	s := &subscription{t: t, channel: req.Channel, kind: req.Kind}
	if req.Kind == core.KindPresence {
		if req.Auth.ChannelData != "" {
			var self core.Member
			if err := json.Unmarshal([]byte(req.Auth.ChannelData), &self); err == nil && self.ID != "" {
				t.rosterLocked(req.Channel)[self.ID] = self
			}
		}
		for _, m := range t.rosterLocked(req.Channel) {
			s.members = append(s.members, m)
		}
	}
	t.subs[req.Channel] = s
	return s, nil
}

// Emit synthesizes an inbound event. It reports whether the event reached
// a subscription that had bound it.
func (t *Transport) Emit(channel, event string, data any) bool {
	env, err := broadcaster.NewEnvelope(channel, event, "", data)
	if err != nil {
		slog.Warn("null: emit dropped", "channel", channel, "event", event, "error", err)
		return false
	}

	t.mu.Lock()
	s, ok := t.subs[channel]
	in := t.in
	t.mu.Unlock()
	if !ok || in == nil || !s.Wants(event) {
		return false
	}

	in.Deliver(env.ToEvent())
	return true
}

// Join adds m to the roster of a presence channel and announces it.
func (t *Transport) Join(channel string, m core.Member) bool {
	t.mu.Lock()
	t.rosterLocked(channel)[m.ID] = m
	t.mu.Unlock()
	return t.Emit(channel, core.EventMemberAdded, m)
}

// Part removes m from the roster of a presence channel and announces it.
func (t *Transport) Part(channel string, m core.Member) bool {
	t.mu.Lock()
	delete(t.rosterLocked(channel), m.ID)
	t.mu.Unlock()
	return t.Emit(channel, core.EventMemberRemoved, m)
}

// Whispers returns the client events triggered so far.
func (t *Transport) Whispers() []Whisper {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Whisper(nil), t.whispers...)
}

// Subscribed reports whether channel currently has a subscription.
func (t *Transport) Subscribed(channel string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subs[channel]
	return ok
}

func (t *Transport) rosterLocked(channel string) map[string]core.Member {
	r, ok := t.rosters[channel]
	if !ok {
		r = make(map[string]core.Member)
		t.rosters[channel] = r
	}
	return r
}

// optsFromConfig extracts options from broadcaster.Config.Extra.
func optsFromConfig(cfg broadcaster.Config) []Option {
	var opts []Option
	switch v := cfg.Extra["reject_authorization"].(type) {
	case string:
		opts = append(opts, WithRejectAuthorization(v))
	case []string:
		opts = append(opts, WithRejectAuthorization(v...))
	case []any:
		for _, p := range v {
			if s, ok := p.(string); ok {
				opts = append(opts, WithRejectAuthorization(s))
			}
		}
	}
	return opts
}
