package null

import (
	"context"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

type subscription struct {
	broadcaster.Bindings

	t       *Transport
	channel string
	kind    core.Kind
	members []core.Member
}

func (s *subscription) Channel() string { return s.channel }

func (s *subscription) Members() []core.Member { return s.members }

// Trigger records the client event. The null transport has no other
// subscribers, so nothing is delivered.
func (s *subscription) Trigger(_ context.Context, event string, data any) error {
	env, err := broadcaster.NewEnvelope(s.channel, event, "", data)
	if err != nil {
		return err
	}
	s.t.mu.Lock()
	s.t.whispers = append(s.t.whispers, Whisper{Channel: s.channel, Event: event, Data: env.Data})
	s.t.mu.Unlock()
	return nil
}

func (s *subscription) Unsubscribe(context.Context) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.subs[s.channel] == s {
		delete(s.t.subs, s.channel)
	}
	return nil
}
