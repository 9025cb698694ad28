package null

import "github.com/miladsoleymani/eventcast/core"

// Option configures the null transport.
type Option func(*options)

type options struct {
	rejects []string
	matcher core.NameMatcher
}

func defaults() options {
	return options{matcher: core.DefaultMatcher{}}
}

// WithRejectAuthorization makes subscriptions to channels matching any of
// the patterns fail with *core.AuthorizationError. Patterns use
// core.DefaultMatcher syntax ("private-orders.*", "presence-#", or
// "admin.#" for every kind).
func WithRejectAuthorization(patterns ...string) Option {
	return func(o *options) { o.rejects = append(o.rejects, patterns...) }
}

// WithMatcher replaces the matcher used for rejection patterns.
func WithMatcher(m core.NameMatcher) Option {
	return func(o *options) { o.matcher = m }
}
