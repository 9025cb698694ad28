package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownChannel is returned by Resubscribe for names that are not registered.
var ErrUnknownChannel = errors.New("eventcast: unknown channel")

// Connector owns one transport connection and the registry of channels
// subscribed over it. It routes inbound transport events to the channel
// they belong to.
//
// None of its methods wait for the network: subscription outcomes are
// observed through channel callbacks and Errors.
type Connector struct {
	transport  Transport
	formatter  *EventFormatter
	authorizer Authorizer
	binder     Binder
	logger     *slog.Logger
	opts       options

	mu       sync.Mutex
	channels map[string]*entry
	ctx      context.Context
	cancel   context.CancelFunc
	ready    chan struct{}
	opening  chan struct{}            // closed when the latest open attempt returns
	leaving  map[string]chan struct{} // closed when a pending unsubscribe finishes

	stateMu   sync.Mutex
	connState ConnectionState
	onConn    []func(ConnectionState)

	mwMu sync.RWMutex
	mws  []Middleware

	errs chan error
}

// entry keeps every capability view of one registered channel.
type entry struct {
	ch       *Channel
	private  *PrivateChannel
	presence *PresenceChannel
}

var (
	_ Inbound    = (*Connector)(nil)
	_ Authorizer = (*Connector)(nil)
)

// NewConnector creates a Connector over t. Call Connect to open the
// transport.
func NewConnector(t Transport, fns ...Option) *Connector {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.errorBuffer < 1 {
		opts.errorBuffer = 1
	}

	return &Connector{
		transport:  t,
		formatter:  NewEventFormatter(opts.namespace),
		authorizer: opts.authorizer,
		binder:     opts.binder,
		logger:     logger.With("component", "eventcast"),
		opts:       opts,
		channels:   make(map[string]*entry),
		leaving:    make(map[string]chan struct{}),
		mws:        append([]Middleware(nil), opts.middlewares...),
		errs:       make(chan error, opts.errorBuffer),
	}
}

// Use registers listener middleware. Middleware is applied in registration
// order: the first registered wraps outermost.
func (c *Connector) Use(mws ...Middleware) {
	c.mwMu.Lock()
	defer c.mwMu.Unlock()
	c.mws = append(c.mws, mws...)
}

// SetNamespace changes the namespace for listeners registered afterwards.
func (c *Connector) SetNamespace(ns string) {
	c.formatter.SetNamespace(ns)
}

// Transport returns the transport the Connector was created with.
func (c *Connector) Transport() Transport { return c.transport }

// Formatter returns the event formatter shared by all channels.
func (c *Connector) Formatter() *EventFormatter { return c.formatter }

// Errors returns the channel on which asynchronous failures are reported:
// *AuthorizationError and *TransportError values. When the buffer is full the
// oldest error is dropped.
func (c *Connector) Errors() <-chan error { return c.errs }

// OnConnectionChange registers cb for connection state changes.
func (c *Connector) OnConnectionChange(cb func(ConnectionState)) {
	c.stateMu.Lock()
	c.onConn = append(c.onConn, cb)
	c.stateMu.Unlock()
}

// ConnectionState returns the last known connection state.
func (c *Connector) ConnectionState() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connState
}

// Connect opens the transport in the background. It is idempotent. Channels
// left Unsubscribed by a previous Disconnect are subscribed again once the
// connection is up.
func (c *Connector) Connect() error {
	if c.transport == nil {
		return ErrNoTransport
	}

	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	c.ctx, c.cancel, c.ready = ctx, cancel, ready
	prev, done := c.opening, make(chan struct{})
	c.opening = done
	for _, e := range c.channels {
		c.startSubscribeLocked(e.ch, false)
	}
	c.mu.Unlock()

	c.setConnectionState(Connecting)
	go c.open(ctx, ready, prev, done)
	return nil
}

// open runs one Open attempt. Attempts are serialized through prev/done so a
// connection that finishes opening after Disconnect is closed before the
// next attempt starts.
func (c *Connector) open(ctx context.Context, ready chan struct{}, prev <-chan struct{}, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	err := c.transport.Open(ctx, c)

	c.mu.Lock()
	current := c.ctx == ctx
	if err != nil && current {
		c.cancel()
		c.ctx, c.cancel, c.ready = nil, nil, nil
		for _, e := range c.channels {
			e.ch.reset()
		}
	}
	c.mu.Unlock()

	if !current {
		if err == nil {
			if cerr := c.transport.Close(); cerr != nil {
				c.logger.Warn("close stale connection", "error", cerr)
			}
		}
		return
	}
	if err != nil {
		c.report(&TransportError{Op: "open", Err: err})
		c.setConnectionState(Disconnected)
		return
	}

	c.logger.Info("connected", "socket_id", c.transport.SocketID())
	close(ready)
	c.setConnectionState(Connected)
}

// Disconnect closes the transport and moves every channel to Unsubscribed.
// The channel registry and all listener registrations are kept so a later
// Connect resumes where the application left off; use Leave to discard
// channels.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	if !c.stopLocked() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.transport.Close()
	c.setConnectionState(Disconnected)
	if err != nil {
		return fmt.Errorf("eventcast: close transport: %w", err)
	}
	return nil
}

// stopLocked cancels the current connection and resets every channel to
// Unsubscribed, keeping the registry. It reports false when not connected.
// c.mu must be held.
func (c *Connector) stopLocked() bool {
	if c.ctx == nil {
		return false
	}
	c.cancel()
	c.ctx, c.cancel, c.ready = nil, nil, nil
	for _, e := range c.channels {
		e.ch.reset()
	}
	return true
}

// SocketID returns the transport connection id, or "" when not connected.
func (c *Connector) SocketID() string {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if ready == nil {
		return ""
	}
	select {
	case <-ready:
		return c.transport.SocketID()
	default:
		return ""
	}
}

// Channel returns the public channel called name, creating and subscribing
// it on first use.
func (c *Connector) Channel(name string) (*Channel, error) {
	full, err := qualify(name, KindPublic)
	if err != nil {
		return nil, err
	}
	return c.lookup(full, KindPublic).ch, nil
}

// PrivateChannel returns the private channel for name. The "private-"
// prefix is added when missing.
func (c *Connector) PrivateChannel(name string) (*PrivateChannel, error) {
	full, err := qualify(name, KindPrivate)
	if err != nil {
		return nil, err
	}
	return c.lookup(full, KindPrivate).private, nil
}

// PresenceChannel returns the presence channel for name. The "presence-"
// prefix is added when missing.
func (c *Connector) PresenceChannel(name string) (*PresenceChannel, error) {
	full, err := qualify(name, KindPresence)
	if err != nil {
		return nil, err
	}
	return c.lookup(full, KindPresence).presence, nil
}

// Listen is shorthand for Channel(name) followed by Listen(event, l).
func (c *Connector) Listen(name, event string, l Listener) (*Channel, error) {
	ch, err := c.Channel(name)
	if err != nil {
		return nil, err
	}
	return ch.Listen(event, l), nil
}

// Leave leaves name and its private and presence variants.
func (c *Connector) Leave(name string) {
	for _, n := range []string{name, PrivatePrefix + name, PresencePrefix + name} {
		c.LeaveChannel(n)
	}
}

// LeaveChannel leaves exactly the channel with the given full name. The
// transport unsubscribe happens in the background; an event already being
// dispatched may still reach listeners. A new subscription to the same name
// is not sent until that unsubscribe has finished.
func (c *Connector) LeaveChannel(full string) {
	c.mu.Lock()
	e, ok := c.channels[full]
	if ok {
		delete(c.channels, full)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	sub := e.ch.leave()
	c.logger.Debug("left channel", "channel", full)
	if sub == nil {
		return
	}

	done := make(chan struct{})
	c.mu.Lock()
	prev := c.leaving[full]
	c.leaving[full] = done
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			if c.leaving[full] == done {
				delete(c.leaving, full)
			}
			c.mu.Unlock()
			close(done)
		}()
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.subscribeTimeout)
		defer cancel()
		if err := sub.Unsubscribe(ctx); err != nil {
			c.logger.Warn("unsubscribe failed", "channel", full, "error", err)
		}
	}()
}

// Resubscribe retries the subscription of a Failed or Unsubscribed channel,
// keeping its listeners.
func (c *Connector) Resubscribe(full string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.channels[full]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, full)
	}
	if c.ctx == nil {
		// picked up by the next Connect
		e.ch.mu.Lock()
		if e.ch.state == Failed {
			e.ch.state = Unsubscribed
		}
		e.ch.mu.Unlock()
		return nil
	}
	c.startSubscribeLocked(e.ch, true)
	return nil
}

// Channels returns the full names of all registered channels, sorted.
func (c *Connector) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deliver routes an inbound transport event to its channel. It implements
// Inbound.
func (c *Connector) Deliver(e Event) {
	c.mu.Lock()
	en, ok := c.channels[e.Channel]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("event for unknown channel", "channel", e.Channel, "event", e.Name)
		return
	}

	e.binder = c.binder
	en.ch.dispatch(e, c.invoker())
}

// Authorize obtains credentials for channel from the configured
// Authorizer, or empty credentials when there is none. Transports whose
// socket id changes on reconnect use it through Inbound to re-authorize.
func (c *Connector) Authorize(ctx context.Context, socketID, channel string) (Auth, error) {
	if c.authorizer == nil {
		return Auth{}, nil
	}
	return c.authorizer.Authorize(ctx, socketID, channel)
}

// ConnectionChanged surfaces transport connection changes. It implements
// Inbound. Disconnected with an error means the transport gave up: the
// connection is torn down as by Disconnect, so a later Connect opens it
// again and resubscribes every channel.
func (c *Connector) ConnectionChanged(state ConnectionState, err error) {
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Op: "connection", Err: err}
		}
		c.report(err)
	}

	if state == Disconnected && err != nil {
		c.mu.Lock()
		lost := c.stopLocked()
		c.mu.Unlock()
		if lost {
			c.logger.Warn("connection lost", "error", err)
			if cerr := c.transport.Close(); cerr != nil {
				c.logger.Debug("close lost connection", "error", cerr)
			}
		}
	}
	c.setConnectionState(state)
}

func (c *Connector) lookup(full string, kind Kind) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.channels[full]; ok {
		return e
	}

	ch := newChannel(full, kind, c)
	e := &entry{ch: ch}
	switch kind {
	case KindPrivate:
		e.private = &PrivateChannel{Channel: ch}
	case KindPresence:
		e.presence = newPresenceChannel(ch)
		e.private = e.presence.PrivateChannel
	}
	c.channels[full] = e

	if c.ctx != nil {
		c.startSubscribeLocked(ch, false)
	}
	return e
}

// startSubscribeLocked starts a background subscription. c.mu must be held.
func (c *Connector) startSubscribeLocked(ch *Channel, retryFailed bool) {
	gen, ok := ch.beginSubscribe(retryFailed)
	if !ok {
		return
	}
	go c.subscribe(c.ctx, c.ready, ch, gen)
}

func (c *Connector) subscribe(ctx context.Context, ready <-chan struct{}, ch *Channel, gen uint64) {
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}

	c.mu.Lock()
	leaving := c.leaving[ch.name]
	c.mu.Unlock()
	if leaving != nil {
		select {
		case <-leaving:
		case <-ctx.Done():
			return
		}
	}

	sctx, cancel := context.WithTimeout(ctx, c.opts.subscribeTimeout)
	defer cancel()

	req := SubscribeRequest{Channel: ch.name, Kind: ch.kind}
	if ch.kind.RequiresAuth() && c.authorizer != nil {
		auth, err := c.authorizer.Authorize(sctx, c.transport.SocketID(), ch.name)
		if err != nil {
			c.fail(ctx, ch, gen, err)
			return
		}
		req.Auth = auth
	}

	sub, err := c.transport.Subscribe(sctx, req)
	if err != nil {
		c.fail(ctx, ch, gen, err)
		return
	}

	if !ch.resolve(gen, sub, nil) {
		// left or reset while subscribing
		uctx, ucancel := context.WithTimeout(context.Background(), c.opts.subscribeTimeout)
		defer ucancel()
		if err := sub.Unsubscribe(uctx); err != nil {
			c.logger.Debug("stale unsubscribe failed", "channel", ch.name, "error", err)
		}
		return
	}
	c.logger.Debug("subscribed", "channel", ch.name, "kind", ch.kind.String())
}

func (c *Connector) fail(ctx context.Context, ch *Channel, gen uint64, err error) {
	if ctx.Err() != nil {
		return
	}

	var (
		ae *AuthorizationError
		te *TransportError
		ce *ConfigurationError
		ue *UnsupportedCapabilityError
	)
	switch {
	case errors.As(err, &ae), errors.As(err, &te), errors.As(err, &ce), errors.As(err, &ue):
	default:
		err = &TransportError{Op: "subscribe " + ch.name, Err: err}
	}

	if ch.resolve(gen, nil, err) {
		c.report(err)
	}
}

func (c *Connector) report(err error) {
	c.logger.Warn("eventcast error", "error", err)
	select {
	case c.errs <- err:
		return
	default:
	}
	// full: drop the oldest
	select {
	case <-c.errs:
	default:
	}
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Connector) setConnectionState(s ConnectionState) {
	c.stateMu.Lock()
	if c.connState == s {
		c.stateMu.Unlock()
		return
	}
	c.connState = s
	cbs := append([]func(ConnectionState){}, c.onConn...)
	c.stateMu.Unlock()

	c.logger.Debug("connection state", "state", s.String())
	for _, cb := range cbs {
		cb(s)
	}
}

func (c *Connector) invoker() func(Listener, Event) {
	c.mwMu.RLock()
	mws := c.mws
	c.mwMu.RUnlock()

	return func(l Listener, e Event) {
		applyMiddleware(l, mws)(e)
	}
}

// applyMiddleware wraps a listener with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> listener.
func applyMiddleware(l Listener, mws []Middleware) Listener {
	for i := len(mws) - 1; i >= 0; i-- {
		l = mws[i](l)
	}
	return l
}

// qualify validates name against the naming convention for kind and
// returns the full channel name.
func qualify(name string, kind Kind) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &ConfigurationError{Reason: "channel name is empty"}
	}

	actual := KindOf(name)
	switch kind {
	case KindPublic:
		if actual != KindPublic {
			return "", &ConfigurationError{
				Reason: fmt.Sprintf("channel %q carries the %s prefix; use the %s channel accessor", name, actual, actual),
			}
		}
		return name, nil
	default:
		if actual != KindPublic && actual != kind {
			return "", &ConfigurationError{
				Reason: fmt.Sprintf("channel %q is a %s channel, not %s", name, actual, kind),
			}
		}
		full := name
		if actual == KindPublic {
			full = kind.Prefix() + name
		}
		if full == kind.Prefix() {
			return "", &ConfigurationError{Reason: "channel name is empty"}
		}
		return full, nil
	}
}
