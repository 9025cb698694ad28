package core

import (
	"sync"
)

// ListenerID identifies a single listener registration on a Channel.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Channel is a named event stream. It keeps the listener registry and the
// transport subscription state; PrivateChannel and PresenceChannel layer
// capabilities on top of it.
//
// Subscriptions are eager: the Connector starts subscribing as soon as the
// Channel is created, so events published before the first Listen are lost.
type Channel struct {
	name      string
	kind      Kind
	connector *Connector
	formatter *EventFormatter

	mu           sync.Mutex
	state        SubscriptionState
	sub          Subscription
	gen          uint64
	left         bool
	err          error
	listeners    map[string][]listenerEntry
	global       []listenerEntry
	nextID       ListenerID
	onSubscribed []func()
	onError      []func(error)

	// capability hooks, set once at construction
	onResolve  func(Subscription)
	onInternal func(Event)
	onReset    func()
}

func newChannel(name string, kind Kind, conn *Connector) *Channel {
	return &Channel{
		name:      name,
		kind:      kind,
		connector: conn,
		formatter: conn.formatter,
		listeners: make(map[string][]listenerEntry),
	}
}

// Name returns the full channel name, including any privilege prefix.
func (c *Channel) Name() string { return c.name }

// Kind returns the privilege level the channel was created for.
func (c *Channel) Kind() Kind { return c.kind }

// State returns the current subscription state.
func (c *Channel) State() SubscriptionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the channel to Failed, if any.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Listen registers l for event and returns the channel for chaining.
// Listeners for the same event run in registration order.
func (c *Channel) Listen(event string, l Listener) *Channel {
	c.On(event, l)
	return c
}

// On registers l for event and returns an id that StopListeningFor accepts.
func (c *Channel) On(event string, l Listener) ListenerID {
	name := c.formatter.Key(event)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	first := len(c.listeners[name]) == 0
	c.listeners[name] = append(c.listeners[name], listenerEntry{id: id, fn: l})
	if first && c.sub != nil {
		c.sub.Bind(name)
	}
	return id
}

// StopListening removes every listener registered for event.
func (c *Channel) StopListening(event string) *Channel {
	name := c.formatter.Key(event)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.listeners[name]; !ok {
		return c
	}
	delete(c.listeners, name)
	if c.sub != nil {
		c.sub.Unbind(name)
	}
	return c
}

// StopListeningFor removes the single registration id for event.
func (c *Channel) StopListeningFor(event string, id ListenerID) *Channel {
	name := c.formatter.Key(event)

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.listeners[name]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		entries = append(entries[:i:i], entries[i+1:]...)
		if len(entries) == 0 {
			delete(c.listeners, name)
			if c.sub != nil {
				c.sub.Unbind(name)
			}
		} else {
			c.listeners[name] = entries
		}
		break
	}
	return c
}

// ListenToAll registers l for every event on the channel. Global listeners
// receive the raw event name and run after event-specific listeners.
func (c *Channel) ListenToAll(l Listener) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	first := len(c.global) == 0
	c.global = append(c.global, listenerEntry{id: c.nextID, fn: l})
	if first && c.sub != nil {
		c.sub.BindAll()
	}
	return c
}

// StopListeningToAll removes every global listener.
func (c *Channel) StopListeningToAll() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.global) == 0 {
		return c
	}
	c.global = nil
	if c.sub != nil {
		c.sub.UnbindAll()
	}
	return c
}

// Notification listens for broadcast notifications sent to this channel.
func (c *Channel) Notification(l Listener) *Channel {
	return c.Listen(NotificationEvent, l)
}

// StopListeningForNotification removes all notification listeners.
func (c *Channel) StopListeningForNotification() *Channel {
	return c.StopListening(NotificationEvent)
}

// ListenForWhisper listens for client events whispered by other subscribers.
func (c *Channel) ListenForWhisper(event string, l Listener) *Channel {
	return c.Listen(qualifiedMarker+ClientEventPrefix+event, l)
}

// StopListeningForWhisper removes all listeners for a whispered event.
func (c *Channel) StopListeningForWhisper(event string) *Channel {
	return c.StopListening(qualifiedMarker + ClientEventPrefix + event)
}

// Subscribed registers cb for every transition to Subscribed. If the channel
// is already subscribed cb also runs immediately.
func (c *Channel) Subscribed(cb func()) *Channel {
	c.mu.Lock()
	c.onSubscribed = append(c.onSubscribed, cb)
	now := c.state == Subscribed
	c.mu.Unlock()

	if now {
		cb()
	}
	return c
}

// Error registers cb for subscription failures.
func (c *Channel) Error(cb func(error)) *Channel {
	c.mu.Lock()
	c.onError = append(c.onError, cb)
	c.mu.Unlock()
	return c
}

// beginSubscribe moves the channel to Subscribing and returns the generation
// the pending subscription belongs to. Must be called with the connector
// lock held.
func (c *Channel) beginSubscribe(retryFailed bool) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.left {
		return 0, false
	}
	switch c.state {
	case Unsubscribed:
	case Failed:
		if !retryFailed {
			return 0, false
		}
	default:
		return 0, false
	}
	c.state = Subscribing
	c.err = nil
	c.gen++
	return c.gen, true
}

// resolve completes the subscription started for gen. It reports false when
// the result is stale (the channel was left, reset or resubscribed since).
func (c *Channel) resolve(gen uint64, sub Subscription, err error) bool {
	c.mu.Lock()
	if c.left || gen != c.gen || c.state != Subscribing {
		c.mu.Unlock()
		return false
	}

	if err != nil {
		c.state = Failed
		c.err = err
		cbs := append([]func(error){}, c.onError...)
		c.mu.Unlock()

		for _, cb := range cbs {
			cb(err)
		}
		return true
	}

	c.state = Subscribed
	c.sub = sub
	for name := range c.listeners {
		sub.Bind(name)
	}
	if len(c.global) > 0 {
		sub.BindAll()
	}
	cbs := append([]func(){}, c.onSubscribed...)
	hook := c.onResolve
	c.mu.Unlock()

	if hook != nil {
		hook(sub)
	}
	for _, cb := range cbs {
		cb()
	}
	return true
}

// reset drops the subscription without unsubscribing, keeping listeners.
// Used when the transport connection goes away.
func (c *Channel) reset() {
	c.mu.Lock()
	c.state = Unsubscribed
	c.sub = nil
	c.gen++
	hook := c.onReset
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// leave marks the channel dead, releases its listeners and returns the
// subscription the caller must unsubscribe.
func (c *Channel) leave() Subscription {
	c.mu.Lock()
	sub := c.sub
	c.left = true
	c.sub = nil
	c.state = Unsubscribed
	c.gen++
	c.listeners = make(map[string][]listenerEntry)
	c.global = nil
	c.onSubscribed = nil
	c.onError = nil
	hook := c.onReset
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	return sub
}

// subscription returns the active subscription, or nil.
func (c *Channel) subscription() Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Subscribed {
		return nil
	}
	return c.sub
}

// dispatch routes one inbound event to the matching listeners.
func (c *Channel) dispatch(e Event, invoke func(Listener, Event)) {
	if IsInternal(e.Name) {
		c.mu.Lock()
		hook := c.onInternal
		live := !c.left && (c.state == Subscribing || c.state == Subscribed)
		c.mu.Unlock()
		if hook != nil && live {
			hook(e)
		}
		return
	}

	c.mu.Lock()
	if c.left || c.state != Subscribed {
		c.mu.Unlock()
		return
	}
	matched := c.listeners[e.Name]
	targets := make([]Listener, 0, len(matched)+len(c.global))
	for _, le := range matched {
		targets = append(targets, le.fn)
	}
	for _, le := range c.global {
		targets = append(targets, le.fn)
	}
	c.mu.Unlock()

	for _, l := range targets {
		invoke(l, e)
	}
}
