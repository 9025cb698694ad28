package socket

import (
	"net/http"
	"time"
)

// Option configures the socket transport.
type Option func(*options)

type options struct {
	header           http.Header
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	readLimit        int64

	// Reconnect
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	reconnectTimeout time.Duration
}

func defaults() options {
	return options{
		handshakeTimeout: 10 * time.Second,
		pingInterval:     30 * time.Second,
		readLimit:        1 << 20,
		reconnectInitial: 500 * time.Millisecond,
		reconnectMax:     30 * time.Second,
		reconnectTimeout: 10 * time.Minute,
	}
}

// WithHeader sets HTTP headers sent with the WebSocket handshake.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// WithHandshakeTimeout bounds dialing plus waiting for the server greeting.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithPingInterval sets how often the connection is pinged. Zero disables
// keepalive pings.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) { o.pingInterval = d }
}

// WithReadLimit caps the size of a single inbound frame.
func WithReadLimit(n int64) Option {
	return func(o *options) { o.readLimit = n }
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
