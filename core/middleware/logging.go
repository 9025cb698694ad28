package middleware

import (
	"log/slog"
	"time"

	"github.com/miladsoleymani/eventcast/core"
)

// Logging returns middleware that logs each listener invocation and its
// duration at debug level. A nil logger uses slog.Default().
func Logging(logger *slog.Logger) core.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next core.Listener) core.Listener {
		return func(e core.Event) {
			start := time.Now()
			next(e)
			logger.Debug("event dispatched",
				"channel", e.Channel,
				"event", e.Name,
				"elapsed", time.Since(start))
		}
	}
}
