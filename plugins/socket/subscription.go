package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

type subscription struct {
	broadcaster.Bindings

	t       *Transport
	channel string
	kind    core.Kind

	mu     sync.Mutex
	roster map[string]core.Member
}

func (s *subscription) Channel() string { return s.channel }

func (s *subscription) Members() []core.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Member, 0, len(s.roster))
	for _, m := range s.roster {
		out = append(out, m)
	}
	return out
}

func (s *subscription) Trigger(ctx context.Context, event string, data any) error {
	env, err := broadcaster.NewEnvelope(s.channel, event, "", data)
	if err != nil {
		return err
	}
	return s.t.send(ctx, frame{Event: event, Channel: s.channel, Data: env.Data, SocketID: s.t.SocketID()})
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.t.mu.Lock()
	if s.t.subs[s.channel] != s {
		s.t.mu.Unlock()
		return nil
	}
	delete(s.t.subs, s.channel)
	s.t.mu.Unlock()

	err := s.t.send(ctx, frame{Event: eventUnsubscribe, Channel: s.channel})
	if errors.Is(err, core.ErrTransportClosed) {
		return nil
	}
	return err
}

// setRoster replaces the roster with the members listed in data.
func (s *subscription) setRoster(data json.RawMessage) error {
	var ms []core.Member
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ms); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.roster = make(map[string]core.Member, len(ms))
	for _, m := range ms {
		s.roster[m.ID] = m
	}
	s.mu.Unlock()
	return nil
}

// reconcile installs a fresh roster and reports how it differs from the
// previous one.
func (s *subscription) reconcile(data json.RawMessage) (added, removed []core.Member, err error) {
	s.mu.Lock()
	old := s.roster
	s.mu.Unlock()

	if err := s.setRoster(data); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.roster {
		if _, ok := old[id]; !ok {
			added = append(added, m)
		}
	}
	for id, m := range old {
		if _, ok := s.roster[id]; !ok {
			removed = append(removed, m)
		}
	}
	return added, removed, nil
}

// apply tracks a roster delta so a later reconcile diffs against it.
func (s *subscription) apply(name string, data json.RawMessage) {
	if s.kind != core.KindPresence {
		return
	}
	var m core.Member
	if err := json.Unmarshal(data, &m); err != nil || m.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roster == nil {
		s.roster = make(map[string]core.Member)
	}
	switch name {
	case core.EventMemberAdded:
		s.roster[m.ID] = m
	case core.EventMemberRemoved:
		delete(s.roster, m.ID)
	}
}
