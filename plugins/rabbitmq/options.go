package rabbitmq

import "time"

// Option configures the RabbitMQ transport.
type Option func(*options)

type options struct {
	exchange        string
	durableExchange bool

	// Reconnect
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	reconnectTimeout time.Duration
}

func defaults() options {
	return options{
		exchange:         "eventcast",
		durableExchange:  true,
		reconnectInitial: 500 * time.Millisecond,
		reconnectMax:     30 * time.Second,
		reconnectTimeout: 5 * time.Minute,
	}
}

// WithExchange sets the topic exchange every channel is routed through.
func WithExchange(name string) Option {
	return func(o *options) { o.exchange = name }
}

// WithDurableExchange controls whether the exchange survives broker restarts.
func WithDurableExchange(durable bool) Option {
	return func(o *options) { o.durableExchange = durable }
}

// WithReconnect sets the exponential backoff bounds used after the
// connection drops. timeout caps the total time spent reconnecting.
func WithReconnect(initial, max, timeout time.Duration) Option {
	return func(o *options) {
		o.reconnectInitial = initial
		o.reconnectMax = max
		o.reconnectTimeout = timeout
	}
}
