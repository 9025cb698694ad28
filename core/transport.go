package core

import "context"

// Transport defines the contract every backend adapter implements so the
// Connector stays backend-agnostic.
//
// Implementations must never hold their own locks while calling into
// Inbound, and Bind/Unbind must not call back into Inbound.
type Transport interface {
	// Open establishes the connection. It is idempotent and may be called
	// again after Close.
	Open(ctx context.Context, in Inbound) error

	// Close tears down the connection and drops all subscriptions.
	Close() error

	// Subscribe joins a channel and blocks until the backend accepts or
	// rejects the subscription.
	Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error)

	// SocketID returns the current connection identifier, or "" when not
	// connected.
	SocketID() string
}

// SubscribeRequest describes one channel subscription.
type SubscribeRequest struct {
	Channel string
	Kind    Kind
	Auth    Auth
}

// Auth is the result of authorizing a private or presence channel.
type Auth struct {
	Token       string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// Subscription is a live channel subscription owned by a transport.
type Subscription interface {
	Channel() string

	// Bind declares interest in an event name. Transports only deliver
	// bound events and internal roster events.
	Bind(event string)
	Unbind(event string)

	// BindAll declares interest in every event on the channel.
	BindAll()
	UnbindAll()

	// Trigger publishes a client-originated event for rebroadcast to other
	// subscribers. Transports without client events return
	// *UnsupportedCapabilityError.
	Trigger(ctx context.Context, event string, data any) error

	Unsubscribe(ctx context.Context) error

	// Members returns the initial roster for presence subscriptions.
	Members() []Member
}

// Inbound receives everything a transport produces asynchronously.
// Connector implements it. An Inbound that also implements Authorizer
// lets transports re-authorize subscriptions after a reconnect.
type Inbound interface {
	Deliver(e Event)
	ConnectionChanged(state ConnectionState, err error)
}

// Authorizer obtains credentials for private and presence channels.
type Authorizer interface {
	Authorize(ctx context.Context, socketID, channel string) (Auth, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, socketID, channel string) (Auth, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, socketID, channel string) (Auth, error) {
	return f(ctx, socketID, channel)
}
