package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Option configures the Kafka transport.
type Option func(*options)

type options struct {
	topicPrefix string
	partition   int

	// Writer
	batchSize  int
	autoCreate bool

	// Reader
	minBytes    int
	maxBytes    int
	maxWait     time.Duration
	startOffset int64

	// General
	dialer *kafka.Dialer
}

func defaults() options {
	return options{
		topicPrefix: "eventcast.",
		batchSize:   1, // client events are latency sensitive
		autoCreate:  true,
		minBytes:    1,
		maxBytes:    10e6, // 10 MB
		maxWait:     500 * time.Millisecond,
		startOffset: kafka.LastOffset,
	}
}

// WithTopicPrefix sets the prefix prepended to every channel topic.
func WithTopicPrefix(p string) Option {
	return func(o *options) { o.topicPrefix = p }
}

// WithPartition sets the partition every channel is read from and written
// to. Channel topics are expected to have a single partition.
func WithPartition(p int) Option {
	return func(o *options) { o.partition = p }
}

// WithBatchSize sets the maximum batch size for writes.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithAutoCreateTopics controls whether writes create missing topics.
func WithAutoCreateTopics(on bool) Option {
	return func(o *options) { o.autoCreate = on }
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithStartOffset sets where a new subscription starts reading
// (kafka.FirstOffset or kafka.LastOffset).
func WithStartOffset(offset int64) Option {
	return func(o *options) { o.startOffset = offset }
}

// WithDialer sets a custom dialer for TLS/SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}
