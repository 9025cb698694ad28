// Package socket provides the "socket" transport: a WebSocket client for a
// socket server speaking JSON frames.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

func init() {
	broadcaster.Register("socket", func(cfg broadcaster.Config) (core.Transport, error) {
		if len(cfg.Hosts) == 0 {
			return nil, &core.ConfigurationError{Reason: "socket: a ws:// or wss:// host is required"}
		}
		return New(cfg.Hosts[0], optsFromConfig(cfg)...), nil
	})
}

// Transport implements core.Transport over one WebSocket connection.
//
// The server greets every connection with a "connected" frame carrying the
// socket id. Subscriptions are confirmed with "subscription_succeeded" or
// rejected with "subscription_error". When the connection drops the
// transport redials with exponential backoff and subscribes again to every
// channel, re-authorizing through the Inbound when it implements
// core.Authorizer.
type Transport struct {
	url  string
	opts options

	mu       sync.Mutex
	conn     *websocket.Conn
	in       core.Inbound
	socketID string
	subs     map[string]*subscription
	pending  map[string]chan frame
	cancel   context.CancelFunc
}

var _ core.Transport = (*Transport)(nil)

// New creates a socket transport for url (ws:// or wss://).
func New(url string, fns ...Option) *Transport {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Transport{
		url:     url,
		opts:    opts,
		subs:    make(map[string]*subscription),
		pending: make(map[string]chan frame),
	}
}

func (t *Transport) Open(ctx context.Context, in core.Inbound) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.in = in
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(rctx, conn)
	return nil
}

// dial connects and waits for the greeting.
func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	hctx, cancel := context.WithTimeout(ctx, t.opts.handshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(hctx, t.url, &websocket.DialOptions{HTTPHeader: t.opts.header})
	if err != nil {
		return nil, &core.TransportError{Op: "dial " + t.url, Err: err}
	}
	conn.SetReadLimit(t.opts.readLimit)

	var hello frame
	if err := wsjson.Read(hctx, conn, &hello); err != nil {
		_ = conn.CloseNow()
		return nil, &core.TransportError{Op: "handshake", Err: err}
	}
	if hello.Event != eventConnected || hello.SocketID == "" {
		_ = conn.Close(websocket.StatusProtocolError, "expected greeting")
		return nil, &core.TransportError{Op: "handshake", Err: fmt.Errorf("unexpected %q frame", hello.Event)}
	}

	t.mu.Lock()
	t.conn = conn
	t.socketID = hello.SocketID
	t.mu.Unlock()
	return conn, nil
}

// run reads frames until the connection fails, then reconnects.
func (t *Transport) run(ctx context.Context, conn *websocket.Conn) {
	for {
		err := t.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		t.mu.Lock()
		in := t.in
		t.conn = nil
		t.socketID = ""
		pending := t.pending
		t.pending = make(map[string]chan frame)
		t.mu.Unlock()
		for _, ch := range pending {
			close(ch)
		}
		in.ConnectionChanged(core.Reconnecting, err)

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = t.opts.reconnectInitial
		bo.MaxInterval = t.opts.reconnectMax
		conn, err = backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return t.dial(ctx)
		},
			backoff.WithBackOff(bo),
			backoff.WithMaxElapsedTime(t.opts.reconnectTimeout),
			backoff.WithNotify(func(err error, next time.Duration) {
				slog.Warn("eventcast/socket: reconnect failed", "error", err, "retry_in", next)
			}),
		)
		if err != nil {
			if ctx.Err() == nil {
				in.ConnectionChanged(core.Disconnected, &core.TransportError{Op: "reconnect", Err: err})
			}
			return
		}

		in.ConnectionChanged(core.Connected, nil)
		go t.resubscribe(ctx, in)
	}
}

// serve runs the read loop and keepalive for one connection.
func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if t.opts.pingInterval > 0 {
		go t.keepalive(cctx, conn)
	}

	for {
		_, b, err := conn.Read(cctx)
		if err != nil {
			_ = conn.CloseNow()
			return err
		}
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			slog.Debug("eventcast/socket: dropped frame", "error", err)
			continue
		}
		t.dispatch(f)
	}
}

func (t *Transport) keepalive(ctx context.Context, conn *websocket.Conn) {
	tick := time.NewTicker(t.opts.pingInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			pctx, cancel := context.WithTimeout(ctx, t.opts.pingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				_ = conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (t *Transport) dispatch(f frame) {
	switch f.Event {
	case eventSucceeded, eventError:
		t.mu.Lock()
		ch, ok := t.pending[f.Channel]
		delete(t.pending, f.Channel)
		t.mu.Unlock()
		if ok {
			ch <- f
		}
		return
	case eventConnected:
		return
	}

	t.mu.Lock()
	s, ok := t.subs[f.Channel]
	in, socketID := t.in, t.socketID
	t.mu.Unlock()
	if !ok {
		return
	}

	if name, internal := internalName(f.Event); internal {
		s.apply(name, f.Data)
		in.Deliver(core.Event{Channel: f.Channel, Name: name, Data: f.Data})
		return
	}

	env := f.envelope()
	if env.IsEcho(socketID) || !s.Wants(f.Event) {
		return
	}
	in.Deliver(env.ToEvent())
}

// send writes one frame on the current connection.
func (t *Transport) send(ctx context.Context, f frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return core.ErrTransportClosed
	}
	if err := wsjson.Write(ctx, conn, f); err != nil {
		return &core.TransportError{Op: "send " + f.Event, Err: err}
	}
	return nil
}

// request sends a subscribe frame and waits for the server's answer.
func (t *Transport) request(ctx context.Context, req core.SubscribeRequest) (frame, error) {
	reply := make(chan frame, 1)
	t.mu.Lock()
	if t.conn == nil {
		t.mu.Unlock()
		return frame{}, core.ErrTransportClosed
	}
	t.pending[req.Channel] = reply
	t.mu.Unlock()

	drop := func() {
		t.mu.Lock()
		if t.pending[req.Channel] == reply {
			delete(t.pending, req.Channel)
		}
		t.mu.Unlock()
	}

	err := t.send(ctx, frame{
		Event:       eventSubscribe,
		Channel:     req.Channel,
		Auth:        req.Auth.Token,
		ChannelData: req.Auth.ChannelData,
	})
	if err != nil {
		drop()
		return frame{}, err
	}

	select {
	case f, ok := <-reply:
		if !ok {
			return frame{}, &core.TransportError{Op: "subscribe " + req.Channel, Err: core.ErrTransportClosed}
		}
		if f.Event == eventError {
			return frame{}, f.err()
		}
		return f, nil
	case <-ctx.Done():
		drop()
		return frame{}, &core.TransportError{Op: "subscribe " + req.Channel, Err: ctx.Err()}
	}
}

func (t *Transport) Subscribe(ctx context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	f, err := t.request(ctx, req)
	if err != nil {
		return nil, err
	}

	s := &subscription{t: t, channel: req.Channel, kind: req.Kind}
	if req.Kind == core.KindPresence {
		if err := s.setRoster(f.Data); err != nil {
			_ = t.send(ctx, frame{Event: eventUnsubscribe, Channel: req.Channel})
			return nil, &core.TransportError{Op: "subscribe " + req.Channel, Err: err}
		}
	}

	t.mu.Lock()
	t.subs[req.Channel] = s
	t.mu.Unlock()
	return s, nil
}

// resubscribe restores every subscription on a fresh connection.
// Presence rosters are reconciled by delivering the difference as roster
// events.
func (t *Transport) resubscribe(ctx context.Context, in core.Inbound) {
	t.mu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	socketID := t.socketID
	t.mu.Unlock()

	authz, _ := in.(core.Authorizer)
	for _, s := range subs {
		err := t.restore(ctx, in, authz, socketID, s)
		if err != nil && ctx.Err() == nil {
			slog.Warn("eventcast/socket: resubscribe failed", "channel", s.channel, "error", err)
			in.ConnectionChanged(core.Connected, &core.TransportError{Op: "resubscribe " + s.channel, Err: err})
		}
	}
}

func (t *Transport) restore(ctx context.Context, in core.Inbound, authz core.Authorizer, socketID string, s *subscription) error {
	sctx, cancel := context.WithTimeout(ctx, t.opts.handshakeTimeout)
	defer cancel()

	req := core.SubscribeRequest{Channel: s.channel, Kind: s.kind}
	if s.kind.RequiresAuth() && authz != nil {
		auth, err := authz.Authorize(sctx, socketID, s.channel)
		if err != nil {
			return err
		}
		req.Auth = auth
	}

	f, err := t.request(sctx, req)
	if err != nil {
		return err
	}
	if s.kind != core.KindPresence {
		return nil
	}

	added, removed, err := s.reconcile(f.Data)
	if err != nil {
		return err
	}
	for _, m := range removed {
		if data, err := json.Marshal(m); err == nil {
			in.Deliver(core.Event{Channel: s.channel, Name: core.EventMemberRemoved, Data: data})
		}
	}
	for _, m := range added {
		if data, err := json.Marshal(m); err == nil {
			in.Deliver(core.Event{Channel: s.channel, Name: core.EventMemberAdded, Data: data})
		}
	}
	return nil
}

// Close stops reconnecting and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn, cancel := t.conn, t.cancel
	t.conn, t.cancel = nil, nil
	t.socketID = ""
	t.subs = make(map[string]*subscription)
	pending := t.pending
	t.pending = make(map[string]chan frame)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ch := range pending {
		close(ch)
	}
	if conn == nil {
		return nil
	}
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil && websocket.CloseStatus(err) == -1 {
		return &core.TransportError{Op: "close", Err: err}
	}
	return nil
}

func (t *Transport) SocketID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socketID
}

// optsFromConfig extracts options from broadcaster.Config.Extra.
func optsFromConfig(cfg broadcaster.Config) []Option {
	var opts []Option
	if v, ok := cfg.Duration("ping_interval"); ok {
		opts = append(opts, WithPingInterval(v))
	}
	if v, ok := cfg.Duration("handshake_timeout"); ok {
		opts = append(opts, WithHandshakeTimeout(v))
	}
	if v, ok := cfg.Int("read_limit"); ok {
		opts = append(opts, WithReadLimit(int64(v)))
	}
	if v, ok := cfg.Duration("reconnect_timeout"); ok {
		d := defaults()
		opts = append(opts, WithReconnect(d.reconnectInitial, d.reconnectMax, v))
	}
	return opts
}
