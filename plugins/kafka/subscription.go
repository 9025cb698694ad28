package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

type subscription struct {
	broadcaster.Bindings

	t        *Transport
	channel  string
	topic    string
	socketID string
	reader   *kafka.Reader
	cancel   context.CancelFunc
	done     chan struct{}
}

func (s *subscription) Channel() string { return s.channel }

func (s *subscription) Members() []core.Member { return nil }

// run reads the channel topic until ctx is cancelled. Read errors back off
// exponentially; the reader reconnects on its own.
func (s *subscription) run(ctx context.Context, in core.Inbound) {
	defer close(s.done)

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			wait := bo.NextBackOff()
			slog.Warn("eventcast/kafka: read failed", "topic", s.topic, "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		env, err := broadcaster.DecodeEnvelope(msg.Value)
		if err != nil {
			slog.Debug("eventcast/kafka: dropped frame", "topic", s.topic, "error", err)
			continue
		}
		if env.IsEcho(s.socketID) || !s.Wants(env.Event) {
			continue
		}
		env.Channel = s.channel
		in.Deliver(env.ToEvent())
	}
}

func (s *subscription) Trigger(ctx context.Context, event string, data any) error {
	env, err := broadcaster.NewEnvelope(s.channel, event, s.socketID, data)
	if err != nil {
		return err
	}
	value, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := s.t.write(ctx, kafka.Message{Topic: s.topic, Key: []byte(s.channel), Value: value}); err != nil {
		return &core.TransportError{Op: "publish " + event, Err: err}
	}
	return nil
}

func (s *subscription) Unsubscribe(context.Context) error {
	if !s.t.forget(s) {
		return nil
	}
	return s.stop()
}

func (s *subscription) stop() error {
	s.cancel()
	err := s.reader.Close()
	<-s.done
	if err != nil {
		return fmt.Errorf("eventcast/kafka: close reader %q: %w", s.topic, err)
	}
	return nil
}
