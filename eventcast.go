// Package eventcast provides the top-level API for the eventcast client.
// It re-exports core types for convenience, so users can write:
//
//	c, err := eventcast.New(cfg)
//	c.Listen("orders", "OrderShipped", func(e eventcast.Event) { ... })
package eventcast

import (
	"fmt"

	"github.com/miladsoleymani/eventcast/auth"
	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/config"
	"github.com/miladsoleymani/eventcast/core"
	"github.com/miladsoleymani/eventcast/core/middleware"

	// The null broadcaster is always available.
	_ "github.com/miladsoleymani/eventcast/plugins/null"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Event           = core.Event
	Listener        = core.Listener
	Middleware      = core.Middleware
	Member          = core.Member
	Connector       = core.Connector
	Channel         = core.Channel
	PrivateChannel  = core.PrivateChannel
	PresenceChannel = core.PresenceChannel
	Transport       = core.Transport
	Option          = core.Option
	Config          = broadcaster.Config
)

// New creates the transport named by cfg.Broadcaster, builds a Connector
// over it and connects. Private and presence channels are authorized
// against cfg.Auth.Endpoint when one is set. Listener panics are recovered
// and logged to slog.Default(); opts are applied after these defaults.
//
// Transports other than "null" must be linked in by importing their plugin
// package.
func New(cfg Config, opts ...Option) (*Connector, error) {
	t, err := broadcaster.Create(cfg.Broadcaster, cfg)
	if err != nil {
		return nil, err
	}

	base := []Option{
		core.WithNamespace(cfg.Namespace),
		core.WithMiddleware(middleware.Recovery(nil)),
	}
	if cfg.SubscribeTimeout > 0 {
		base = append(base, core.WithSubscribeTimeout(cfg.SubscribeTimeout))
	}
	if cfg.Auth.Endpoint != "" {
		var a core.Authorizer = auth.NewHTTPAuthorizer(cfg.Auth, nil)
		if cfg.Auth.CacheTTL > 0 {
			cached, err := auth.Cached(a, cfg.Auth.CacheTTL)
			if err != nil {
				return nil, err
			}
			a = cached
		}
		base = append(base, core.WithAuthorizer(a))
	}

	c := core.NewConnector(t, append(base, opts...)...)
	if err := c.Connect(); err != nil {
		return nil, fmt.Errorf("eventcast: connect %s: %w", cfg.Broadcaster, err)
	}
	return c, nil
}

// Load reads configuration from yamlPath and the environment (see
// config.LoadFrom) and calls New with a logger built from it.
func Load(yamlPath string, opts ...Option) (*Connector, error) {
	cfg, err := config.LoadFrom(yamlPath)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Logging)
	return New(cfg.Broadcast, append([]Option{core.WithLogger(logger)}, opts...)...)
}
