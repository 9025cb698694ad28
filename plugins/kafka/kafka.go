// Package kafka provides the "kafka" transport: one topic per channel.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

func init() {
	broadcaster.Register("kafka", func(cfg broadcaster.Config) (core.Transport, error) {
		if len(cfg.Hosts) == 0 {
			return nil, &core.ConfigurationError{Reason: "kafka: at least one broker address is required"}
		}
		return New(cfg.Hosts, optsFromConfig(cfg)...), nil
	})
}

// Transport implements core.Transport for Apache Kafka using
// segmentio/kafka-go.
//
// Design decisions:
//   - One kafka.Writer shared by every subscription (thread-safe by library).
//   - One kafka.Reader per subscribed channel, without a consumer group, so
//     every client sees every event. Nothing is committed.
//   - New subscriptions start at the end of the topic: at-most-once, no replay.
//   - Presence rosters are not supported.
type Transport struct {
	brokers []string
	opts    options

	mu       sync.Mutex
	writer   *kafka.Writer
	in       core.Inbound
	socketID string
	subs     map[string]*subscription
}

var _ core.Transport = (*Transport)(nil)

// New creates a Kafka transport.
func New(brokers []string, fns ...Option) *Transport {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Transport{
		brokers: brokers,
		opts:    opts,
		subs:    make(map[string]*subscription),
	}
}

func (t *Transport) Open(_ context.Context, in core.Inbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writer != nil {
		return nil
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(t.brokers...),
		Balancer:               fixedPartition(t.opts.partition),
		BatchSize:              t.opts.batchSize,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: t.opts.autoCreate,
	}
	if t.opts.dialer != nil {
		w.Transport = &kafka.Transport{
			TLS:  t.opts.dialer.TLS,
			SASL: t.opts.dialer.SASLMechanism,
		}
	}

	t.writer = w
	t.in = in
	t.socketID = uuid.NewString()
	return nil
}

// Close stops every reader and flushes the writer.
func (t *Transport) Close() error {
	t.mu.Lock()
	w := t.writer
	subs := t.subs
	t.writer = nil
	t.socketID = ""
	t.subs = make(map[string]*subscription)
	t.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if w != nil {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("eventcast/kafka: close writer: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) SocketID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socketID
}

func (t *Transport) Subscribe(_ context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	if req.Kind == core.KindPresence {
		return nil, &core.UnsupportedCapabilityError{Transport: "kafka", Capability: "presence"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writer == nil {
		return nil, core.ErrTransportClosed
	}

	topic := t.topic(req.Channel)
	cfg := kafka.ReaderConfig{
		Brokers:     t.brokers,
		Topic:       topic,
		Partition:   t.opts.partition,
		MinBytes:    t.opts.minBytes,
		MaxBytes:    t.opts.maxBytes,
		MaxWait:     t.opts.maxWait,
		StartOffset: t.opts.startOffset,
	}
	if t.opts.dialer != nil {
		cfg.Dialer = t.opts.dialer
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		t:        t,
		channel:  req.Channel,
		topic:    topic,
		socketID: t.socketID,
		reader:   kafka.NewReader(cfg),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	t.subs[req.Channel] = s
	go s.run(ctx, t.in)
	return s, nil
}

func (t *Transport) write(ctx context.Context, msg kafka.Message) error {
	t.mu.Lock()
	w := t.writer
	t.mu.Unlock()
	if w == nil {
		return core.ErrTransportClosed
	}
	return w.WriteMessages(ctx, msg)
}

func (t *Transport) forget(s *subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs[s.channel] != s {
		return false
	}
	delete(t.subs, s.channel)
	return true
}

func (t *Transport) topic(channel string) string {
	return t.opts.topicPrefix + sanitizeTopic(channel)
}

// sanitizeTopic keeps the characters Kafka allows in topic names
// ([a-zA-Z0-9._-]) and replaces the rest with '_'.
func sanitizeTopic(channel string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, channel)
}

// fixedPartition sends every message to one partition, the one readers
// are pinned to.
type fixedPartition int

func (p fixedPartition) Balance(_ kafka.Message, partitions ...int) int {
	for _, id := range partitions {
		if id == int(p) {
			return id
		}
	}
	return partitions[0]
}

// optsFromConfig extracts options from broadcaster.Config.Extra.
func optsFromConfig(cfg broadcaster.Config) []Option {
	var opts []Option
	if v, ok := cfg.String("topic_prefix"); ok {
		opts = append(opts, WithTopicPrefix(v))
	}
	if v, ok := cfg.Int("partition"); ok {
		opts = append(opts, WithPartition(v))
	}
	if v, ok := cfg.Int("batch_size"); ok {
		opts = append(opts, WithBatchSize(v))
	}
	if v, ok := cfg.Int("max_bytes"); ok {
		opts = append(opts, WithMaxBytes(v))
	}
	if v, ok := cfg.Duration("max_wait"); ok {
		opts = append(opts, WithMaxWait(v))
	}
	if v, ok := cfg.Bool("auto_create_topics"); ok {
		opts = append(opts, WithAutoCreateTopics(v))
	}
	if v, ok := cfg.String("start_offset"); ok && v == "first" {
		opts = append(opts, WithStartOffset(kafka.FirstOffset))
	}
	return opts
}
