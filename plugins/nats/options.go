package nats

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Option configures the NATS transport.
type Option func(*options)

type options struct {
	subjectPrefix string
	rosterWindow  time.Duration

	// Connection
	name          string
	maxReconnects int
	reconnectWait time.Duration
	extra         []nats.Option
}

func defaults() options {
	return options{
		subjectPrefix: "eventcast",
		rosterWindow:  250 * time.Millisecond,
		name:          "eventcast",
		maxReconnects: -1, // forever
		reconnectWait: 2 * time.Second,
	}
}

// WithSubjectPrefix sets the first subject token for every channel.
func WithSubjectPrefix(p string) Option {
	return func(o *options) { o.subjectPrefix = p }
}

// WithRosterWindow sets how long a presence subscription collects roster
// replies from other members.
func WithRosterWindow(d time.Duration) Option {
	return func(o *options) { o.rosterWindow = d }
}

// WithName sets the connection name reported to the server.
func WithName(n string) Option {
	return func(o *options) { o.name = n }
}

// WithMaxReconnects sets the reconnect attempt limit. Negative retries forever.
func WithMaxReconnects(n int) Option {
	return func(o *options) { o.maxReconnects = n }
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(o *options) { o.reconnectWait = d }
}

// WithNATSOptions passes raw options to nats.Connect, e.g. credentials or TLS.
func WithNATSOptions(opts ...nats.Option) Option {
	return func(o *options) { o.extra = append(o.extra, opts...) }
}
