package core

import "strings"

// Kind tags a channel with the privilege level it was created for.
type Kind int

const (
	KindPublic Kind = iota
	KindPrivate
	KindPresence
)

// Channel name prefixes that mark the privilege level.
const (
	PrivatePrefix  = "private-"
	PresencePrefix = "presence-"
)

func (k Kind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindPresence:
		return "presence"
	default:
		return "public"
	}
}

// Prefix returns the channel name prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindPrivate:
		return PrivatePrefix
	case KindPresence:
		return PresencePrefix
	default:
		return ""
	}
}

// RequiresAuth reports whether subscriptions of this kind are authorized.
func (k Kind) RequiresAuth() bool { return k != KindPublic }

// KindOf derives the kind from a full channel name.
func KindOf(name string) Kind {
	switch {
	case strings.HasPrefix(name, PresencePrefix):
		return KindPresence
	case strings.HasPrefix(name, PrivatePrefix):
		return KindPrivate
	default:
		return KindPublic
	}
}

// SubscriptionState is the lifecycle state of one channel subscription.
//
//	Unsubscribed -> Subscribing -> Subscribed -> Unsubscribed
//	                Subscribing -> Failed
type SubscriptionState int

const (
	Unsubscribed SubscriptionState = iota
	Subscribing
	Subscribed
	Failed
)

func (s SubscriptionState) String() string {
	switch s {
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Failed:
		return "failed"
	default:
		return "unsubscribed"
	}
}

// ConnectionState is the transport connection state surfaced by the Connector.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}
