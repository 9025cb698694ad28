// Package nats provides the "pubsub" transport on NATS core pub/sub.
package nats

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

func init() {
	broadcaster.Register("pubsub", func(cfg broadcaster.Config) (core.Transport, error) {
		return New(cfg.FirstHost(nats.DefaultURL), optsFromConfig(cfg)...), nil
	})
}

// Transport implements core.Transport over NATS.
//
// Design decisions:
//   - One NATS connection per Transport, opened by Open.
//   - Every channel maps to one subject; events travel as JSON envelopes.
//   - Delivery is at-most-once: no JetStream, nothing is replayed.
//   - Presence rosters live in the members themselves and are gathered with
//     a request on the roster subject.
//   - Reconnects are left to the NATS client; subscriptions survive them.
type Transport struct {
	url  string
	opts options

	mu       sync.Mutex
	conn     *nats.Conn
	in       core.Inbound
	socketID string
	closing  bool
	subs     map[string]*subscription
}

var _ core.Transport = (*Transport)(nil)

// New creates a NATS transport for url (nats://host:port). No connection
// is made until Open.
func New(url string, fns ...Option) *Transport {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Transport{
		url:  url,
		opts: opts,
		subs: make(map[string]*subscription),
	}
}

func (t *Transport) Open(ctx context.Context, in core.Inbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.in = in
	t.closing = false
	t.mu.Unlock()

	nopts := []nats.Option{
		nats.Name(t.opts.name),
		nats.MaxReconnects(t.opts.maxReconnects),
		nats.ReconnectWait(t.opts.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if !t.isClosing() {
				in.ConnectionChanged(core.Reconnecting, err)
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			in.ConnectionChanged(core.Connected, nil)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if t.release(nc) {
				in.ConnectionChanged(core.Disconnected, core.ErrTransportClosed)
			}
		}),
	}
	nopts = append(nopts, t.opts.extra...)

	nc, err := nats.Connect(t.url, nopts...)
	if err != nil {
		return &core.TransportError{Op: "connect " + t.url, Err: err}
	}

	t.mu.Lock()
	t.conn = nc
	t.socketID = uuid.NewString()
	t.mu.Unlock()
	return nil
}

// Close closes the connection. Subscriptions die with it.
func (t *Transport) Close() error {
	t.mu.Lock()
	nc := t.conn
	t.conn = nil
	t.socketID = ""
	t.closing = true
	t.subs = make(map[string]*subscription)
	t.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
	return nil
}

func (t *Transport) SocketID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socketID
}

func (t *Transport) Subscribe(ctx context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	t.mu.Lock()
	nc, in, socketID := t.conn, t.in, t.socketID
	t.mu.Unlock()
	if nc == nil {
		return nil, core.ErrTransportClosed
	}

	s := &subscription{
		t:        t,
		nc:       nc,
		channel:  req.Channel,
		subject:  t.subject("ch", req.Channel),
		socketID: socketID,
	}

	var err error
	s.sub, err = nc.Subscribe(s.subject, func(m *nats.Msg) { s.receive(in, m) })
	if err != nil {
		return nil, &core.TransportError{Op: "subscribe " + req.Channel, Err: err}
	}

	if req.Kind == core.KindPresence {
		if err := s.joinRoster(ctx, t.subject("roster", req.Channel), req.Auth.ChannelData, t.opts.rosterWindow); err != nil {
			_ = s.sub.Unsubscribe()
			return nil, err
		}
	}

	t.mu.Lock()
	t.subs[req.Channel] = s
	t.mu.Unlock()
	return s, nil
}

func (t *Transport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}

// release drops nc when the client closed it on its own, e.g. after
// exhausting reconnect attempts, so the next Open dials again. It reports
// false when nc is not the current connection or Close is in progress.
func (t *Transport) release(nc *nats.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing || t.conn != nc {
		return false
	}
	t.conn = nil
	t.socketID = ""
	t.subs = make(map[string]*subscription)
	return true
}

func (t *Transport) forget(s *subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs[s.channel] == s {
		delete(t.subs, s.channel)
	}
}

// subject builds "<prefix>.<kind>.<channel>".
func (t *Transport) subject(kind, channel string) string {
	return t.opts.subjectPrefix + "." + kind + "." + sanitizeSubject(channel)
}

// sanitizeSubject replaces characters that are wildcards or separators in
// NATS subjects. Dots are kept, so "orders.1" spans two tokens.
func sanitizeSubject(channel string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, channel)
}

// optsFromConfig extracts options from broadcaster.Config.Extra.
func optsFromConfig(cfg broadcaster.Config) []Option {
	var opts []Option
	if v, ok := cfg.String("subject_prefix"); ok {
		opts = append(opts, WithSubjectPrefix(v))
	}
	if v, ok := cfg.Duration("roster_window"); ok {
		opts = append(opts, WithRosterWindow(v))
	}
	if v, ok := cfg.Int("max_reconnects"); ok {
		opts = append(opts, WithMaxReconnects(v))
	}
	if v, ok := cfg.Duration("reconnect_wait"); ok {
		opts = append(opts, WithReconnectWait(v))
	}
	if v, ok := cfg.String("name"); ok {
		opts = append(opts, WithName(v))
	}
	return opts
}

func logDrop(channel string, err error) {
	slog.Debug("eventcast/nats: dropped frame", "channel", channel, "error", err)
}
