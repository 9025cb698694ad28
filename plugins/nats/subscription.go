package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

type subscription struct {
	broadcaster.Bindings

	t        *Transport
	nc       *nats.Conn
	channel  string
	subject  string
	socketID string
	sub      *nats.Subscription

	// presence only
	self    core.Member
	roster  *nats.Subscription
	mu      sync.Mutex
	members []core.Member
}

func (s *subscription) Channel() string { return s.channel }

func (s *subscription) Members() []core.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Member(nil), s.members...)
}

func (s *subscription) receive(in core.Inbound, m *nats.Msg) {
	env, err := broadcaster.DecodeEnvelope(m.Data)
	if err != nil {
		logDrop(s.channel, err)
		return
	}
	if env.IsEcho(s.socketID) || !s.Wants(env.Event) {
		return
	}
	env.Channel = s.channel
	in.Deliver(env.ToEvent())
}

func (s *subscription) Trigger(_ context.Context, event string, data any) error {
	return s.publish(event, data)
}

func (s *subscription) publish(event string, data any) error {
	env, err := broadcaster.NewEnvelope(s.channel, event, s.socketID, data)
	if err != nil {
		return err
	}
	b, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := s.nc.Publish(s.subject, b); err != nil {
		return &core.TransportError{Op: "publish " + event, Err: err}
	}
	return nil
}

// joinRoster answers roster requests for this member, gathers the members
// already present and announces this one.
func (s *subscription) joinRoster(ctx context.Context, subject, channelData string, window time.Duration) error {
	if channelData != "" {
		if err := json.Unmarshal([]byte(channelData), &s.self); err != nil {
			return &core.AuthorizationError{Channel: s.channel, Err: err}
		}
	}

	members, err := s.collect(ctx, subject, window)
	if err != nil {
		return err
	}

	if s.self.ID != "" {
		s.roster, err = s.nc.Subscribe(subject, func(m *nats.Msg) {
			if m.Reply == "" {
				return
			}
			b, err := json.Marshal(s.self)
			if err == nil {
				_ = m.Respond(b)
			}
		})
		if err != nil {
			return &core.TransportError{Op: "roster " + s.channel, Err: err}
		}
		members = append(members, s.self)
		if err := s.publish(core.EventMemberAdded, s.self); err != nil {
			_ = s.roster.Unsubscribe()
			return err
		}
	}

	s.mu.Lock()
	s.members = dedupe(members)
	s.mu.Unlock()
	return nil
}

// collect sends one roster request and gathers replies until window
// elapses or ctx is done.
func (s *subscription) collect(ctx context.Context, subject string, window time.Duration) ([]core.Member, error) {
	inbox := s.nc.NewInbox()
	replies, err := s.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, &core.TransportError{Op: "roster " + s.channel, Err: err}
	}
	defer func() { _ = replies.Unsubscribe() }()

	if err := s.nc.PublishRequest(subject, inbox, nil); err != nil {
		return nil, &core.TransportError{Op: "roster " + s.channel, Err: err}
	}

	deadline := time.Now().Add(window)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var members []core.Member
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return members, nil
		}
		m, err := replies.NextMsg(wait)
		if errors.Is(err, nats.ErrTimeout) {
			return members, nil
		}
		if err != nil {
			return nil, &core.TransportError{Op: "roster " + s.channel, Err: err}
		}
		var mem core.Member
		if err := json.Unmarshal(m.Data, &mem); err != nil || mem.ID == "" {
			logDrop(s.channel, err)
			continue
		}
		members = append(members, mem)
	}
}

func (s *subscription) Unsubscribe(context.Context) error {
	s.t.forget(s)

	var errs []error
	if s.roster != nil {
		if err := s.roster.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
		if err := s.publish(core.EventMemberRemoved, s.self); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return &core.TransportError{Op: "unsubscribe " + s.channel, Err: err}
	}
	return nil
}

func dedupe(ms []core.Member) []core.Member {
	seen := make(map[string]bool, len(ms))
	out := ms[:0]
	for _, m := range ms {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}
