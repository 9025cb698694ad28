package core

import (
	"log/slog"
	"time"
)

// Option configures a Connector.
type Option func(*options)

type options struct {
	namespace        string
	authorizer       Authorizer
	binder           Binder
	logger           *slog.Logger
	errorBuffer      int
	subscribeTimeout time.Duration
	middlewares      []Middleware
}

func defaults() options {
	return options{
		namespace:        "App.Events",
		binder:           JSONBinder{},
		errorBuffer:      16,
		subscribeTimeout: 10 * time.Second,
	}
}

// WithNamespace sets the event namespace. An empty namespace disables
// prefixing.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithAuthorizer sets the authorizer consulted before subscribing to private
// and presence channels. Without one, subscriptions carry empty credentials.
func WithAuthorizer(a Authorizer) Option {
	return func(o *options) { o.authorizer = a }
}

// WithBinder replaces the payload binder used by Event.Bind.
func WithBinder(b Binder) Option {
	return func(o *options) { o.binder = b }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithErrorBuffer sets the capacity of the Errors channel.
func WithErrorBuffer(n int) Option {
	return func(o *options) { o.errorBuffer = n }
}

// WithSubscribeTimeout bounds authorization plus transport subscription.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(o *options) { o.subscribeTimeout = d }
}

// WithMiddleware installs listener middleware at construction.
func WithMiddleware(mws ...Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}
