package broadcaster

import "time"

// Config is the transport-agnostic options bag. Transport plugins extract
// the fields they need.
type Config struct {
	// Broadcaster selects the transport: "pubsub", "socket", "rabbitmq",
	// "kafka" or "null".
	Broadcaster string `yaml:"broadcaster"`

	// Hosts lists server addresses (e.g. "nats://localhost:4222",
	// "ws://localhost:6001/app").
	Hosts []string `yaml:"hosts"`

	// Namespace prefixes short event names. Empty disables prefixing.
	Namespace string `yaml:"namespace"`

	// Auth configures the channel authorization endpoint.
	Auth AuthConfig `yaml:"auth"`

	// SubscribeTimeout bounds authorization plus subscription.
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`

	// Extra holds plugin-specific configuration.
	Extra map[string]any `yaml:"extra"`
}

// AuthConfig describes how private and presence channels are authorized.
type AuthConfig struct {
	// Endpoint is the URL the socket id and channel name are posted to.
	Endpoint string `yaml:"endpoint"`

	// Headers are sent with every authorization request.
	Headers map[string]string `yaml:"headers"`

	// Params are added to the authorization form body.
	Params map[string]string `yaml:"params"`

	// CSRFToken, when set, is sent as X-CSRF-TOKEN.
	CSRFToken string `yaml:"csrf_token"`

	// CacheTTL caches successful authorizations per socket and channel.
	// Zero disables caching.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// FirstHost returns Hosts[0], or fallback when no host is configured.
func (c Config) FirstHost(fallback string) string {
	if len(c.Hosts) == 0 || c.Hosts[0] == "" {
		return fallback
	}
	return c.Hosts[0]
}

// String returns Extra[key] when it is a string.
func (c Config) String(key string) (string, bool) {
	v, ok := c.Extra[key].(string)
	return v, ok
}

// Int returns Extra[key] when it is an integer.
func (c Config) Int(key string) (int, bool) {
	switch v := c.Extra[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Bool returns Extra[key] when it is a bool.
func (c Config) Bool(key string) (bool, bool) {
	v, ok := c.Extra[key].(bool)
	return v, ok
}

// Duration returns Extra[key] when it is a duration or a parsable string.
func (c Config) Duration(key string) (time.Duration, bool) {
	switch v := c.Extra[key].(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	}
	return 0, false
}
