package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/miladsoleymani/eventcast/core"
)

// Transport is a test double for core.Transport.
type Transport struct {
	mu sync.Mutex

	// OpenErr is returned by Open when set.
	OpenErr error
	// SubscribeErr maps channel names to the error Subscribe returns.
	SubscribeErr map[string]error
	// Gate, when non-nil, makes Subscribe wait until it is closed.
	Gate chan struct{}
	// OpenGate, when non-nil, makes Open wait until it is closed.
	OpenGate chan struct{}
	// UnsubscribeGate, when non-nil, makes Subscription.Unsubscribe wait
	// until it is closed.
	UnsubscribeGate chan struct{}
	// TriggerErr is returned by Subscription.Trigger when set.
	TriggerErr error
	// Roster maps presence channels to their initial members.
	Roster map[string][]core.Member

	in       core.Inbound
	open     bool
	opens    int
	closes   int
	unsubs   int
	requests []core.SubscribeRequest
	subs     map[string]*Subscription
}

// Triggered records a client event sent through Subscription.Trigger.
type Triggered struct {
	Channel string
	Event   string
	Data    any
}

func NewTransport() *Transport {
	return &Transport{
		SubscribeErr: make(map[string]error),
		Roster:       make(map[string][]core.Member),
		subs:         make(map[string]*Subscription),
	}
}

func (t *Transport) Open(_ context.Context, in core.Inbound) error {
	t.mu.Lock()
	t.opens++
	gate := t.OpenGate
	t.mu.Unlock()
	if gate != nil {
		<-gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return t.OpenErr
	}
	t.in = in
	t.open = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	t.open = false
	t.subs = make(map[string]*Subscription)
	return nil
}

func (t *Transport) SocketID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return ""
	}
	return "mock.1"
}

func (t *Transport) Subscribe(ctx context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	t.mu.Lock()
	gate := t.Gate
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil, core.ErrTransportClosed
	}
	if err := t.SubscribeErr[req.Channel]; err != nil {
		return nil, err
	}
	s := &Subscription{
		t:       t,
		channel: req.Channel,
		members: append([]core.Member(nil), t.Roster[req.Channel]...),
		bound:   make(map[string]int),
	}
	t.subs[req.Channel] = s
	return s, nil
}

// Deliver simulates an inbound event. It reports whether the event passed
// the subscription's bindings.
func (t *Transport) Deliver(channel, event string, data any) bool {
	t.mu.Lock()
	s, ok := t.subs[channel]
	in := t.in
	t.mu.Unlock()
	if !ok || !s.wants(event) {
		return false
	}

	raw, _ := json.Marshal(data)
	in.Deliver(core.Event{Channel: channel, Name: event, Data: raw})
	return true
}

// Disconnected simulates a connection drop reported by the adapter.
func (t *Transport) Disconnected(err error) {
	t.mu.Lock()
	in := t.in
	t.mu.Unlock()
	in.ConnectionChanged(core.Reconnecting, err)
}

// Lost simulates an adapter that gave up reconnecting.
func (t *Transport) Lost(err error) {
	t.mu.Lock()
	in := t.in
	t.mu.Unlock()
	in.ConnectionChanged(core.Disconnected, err)
}

// IsOpen reports whether the transport is currently open.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Subscription returns the live subscription for channel, if any.
func (t *Transport) Subscription(channel string) (*Subscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.subs[channel]
	return s, ok
}

// Requests returns every SubscribeRequest received.
func (t *Transport) Requests() []core.SubscribeRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.SubscribeRequest(nil), t.requests...)
}

// Opens and Closes count calls to Open and Close.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Unsubscribes counts Subscription.Unsubscribe calls.
func (t *Transport) Unsubscribes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsubs
}
