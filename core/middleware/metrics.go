package middleware

import (
	"fmt"
	"time"

	"github.com/miladsoleymani/eventcast/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library.
type MetricsCollector interface {
	// ListenerInvoked records one listener invocation. err is non-nil when
	// the listener panicked.
	ListenerInvoked(channel, event string, duration time.Duration, err error)
}

// Metrics returns middleware that reports listener metrics to the given
// collector. Panics are recorded and re-raised; place Recovery outside
// Metrics to contain them.
func Metrics(collector MetricsCollector) core.Middleware {
	return func(next core.Listener) core.Listener {
		return func(e core.Event) {
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					collector.ListenerInvoked(e.Channel, e.Name, time.Since(start), fmt.Errorf("panic: %v", r))
					panic(r)
				}
			}()
			next(e)
			collector.ListenerInvoked(e.Channel, e.Name, time.Since(start), nil)
		}
	}
}
