package mock

import (
	"context"

	"github.com/miladsoleymani/eventcast/core"
)

// Subscription is the core.Subscription handed out by Transport.
type Subscription struct {
	t       *Transport
	channel string
	members []core.Member

	bound        map[string]int
	all          bool
	triggered    []Triggered
	unsubscribed bool
}

func (s *Subscription) Channel() string { return s.channel }

func (s *Subscription) Bind(event string) {
	s.t.mu.Lock()
	s.bound[event]++
	s.t.mu.Unlock()
}

func (s *Subscription) Unbind(event string) {
	s.t.mu.Lock()
	delete(s.bound, event)
	s.t.mu.Unlock()
}

func (s *Subscription) BindAll() {
	s.t.mu.Lock()
	s.all = true
	s.t.mu.Unlock()
}

func (s *Subscription) UnbindAll() {
	s.t.mu.Lock()
	s.all = false
	s.t.mu.Unlock()
}

func (s *Subscription) Trigger(_ context.Context, event string, data any) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.TriggerErr != nil {
		return s.t.TriggerErr
	}
	s.triggered = append(s.triggered, Triggered{Channel: s.channel, Event: event, Data: data})
	return nil
}

func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.t.mu.Lock()
	gate := s.t.UnsubscribeGate
	s.t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.unsubscribed = true
	s.t.unsubs++
	if s.t.subs[s.channel] == s {
		delete(s.t.subs, s.channel)
	}
	return nil
}

func (s *Subscription) Members() []core.Member { return s.members }

// Bound reports whether event is bound.
func (s *Subscription) Bound(event string) bool {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return s.bound[event] > 0
}

// Triggered returns the client events sent through Trigger.
func (s *Subscription) Triggered() []Triggered {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return append([]Triggered(nil), s.triggered...)
}

// Unsubscribed reports whether Unsubscribe was called.
func (s *Subscription) Unsubscribed() bool {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return s.unsubscribed
}

func (s *Subscription) wants(event string) bool {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return core.IsInternal(event) || s.all || s.bound[event] > 0
}
