package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

type subscription struct {
	broadcaster.Bindings

	t       *Transport
	channel string
	key     string
}

func (s *subscription) Channel() string { return s.channel }

func (s *subscription) Members() []core.Member { return nil }

func (s *subscription) Trigger(ctx context.Context, event string, data any) error {
	s.t.mu.Lock()
	ch, socketID := s.t.ch, s.t.socketID
	s.t.mu.Unlock()
	if ch == nil {
		return core.ErrTransportClosed
	}

	env, err := broadcaster.NewEnvelope(s.channel, event, socketID, data)
	if err != nil {
		return err
	}
	body, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, s.t.opts.exchange, s.key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}); err != nil {
		return &core.TransportError{Op: "publish " + event, Err: err}
	}
	return nil
}

func (s *subscription) Unsubscribe(context.Context) error {
	s.t.mu.Lock()
	if s.t.subs[s.channel] != s {
		s.t.mu.Unlock()
		return nil
	}
	delete(s.t.subs, s.channel)
	ch, queue := s.t.ch, s.t.queue
	s.t.mu.Unlock()

	if ch == nil {
		return nil
	}
	if err := ch.QueueUnbind(queue, s.key, s.t.opts.exchange, nil); err != nil {
		return &core.TransportError{Op: "unbind " + s.channel, Err: err}
	}
	return nil
}
