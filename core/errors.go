package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTransport is returned when a connector is used without a transport.
	ErrNoTransport = errors.New("eventcast: transport is nil")

	// ErrTransportClosed is returned by transports used before Open or after Close.
	ErrTransportClosed = errors.New("eventcast: transport is closed")

	// ErrNotSubscribed is returned when an operation needs an active subscription.
	ErrNotSubscribed = errors.New("eventcast: channel is not subscribed")

	// ErrUnknownBroadcaster is wrapped by ConfigurationError for unregistered
	// broadcaster names.
	ErrUnknownBroadcaster = errors.New("eventcast: unknown broadcaster")
)

// ConfigurationError reports invalid configuration or channel naming. It is
// always returned synchronously at the call site.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eventcast: configuration: %s: %v", e.Reason, e.Err)
	}
	return "eventcast: configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AuthorizationError reports a rejected channel authorization. It reaches
// the application through the channel's error callbacks and Connector.Errors.
type AuthorizationError struct {
	Channel string
	Status  int
	Err     error
}

func (e *AuthorizationError) Error() string {
	msg := fmt.Sprintf("eventcast: authorization rejected for %q", e.Channel)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// TransportError reports a connection or subscription failure inside a
// transport. It is not fatal; adapters own reconnection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("eventcast: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnsupportedCapabilityError reports an optional capability the transport
// does not implement.
type UnsupportedCapabilityError struct {
	Transport  string
	Capability string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("eventcast: %s transport does not support %s", e.Transport, e.Capability)
}

// IsUnsupported reports whether err is an UnsupportedCapabilityError.
func IsUnsupported(err error) bool {
	var u *UnsupportedCapabilityError
	return errors.As(err, &u)
}
