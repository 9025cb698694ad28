package middleware

import (
	"log/slog"
	"runtime"

	"github.com/miladsoleymani/eventcast/core"
)

// Recovery returns middleware that recovers from panics in listeners and
// logs the stack trace, so one faulty listener cannot take down the
// transport's delivery goroutine.
func Recovery(logger *slog.Logger) core.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next core.Listener) core.Listener {
		return func(e core.Event) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					logger.Error("listener panic recovered",
						"channel", e.Channel,
						"event", e.Name,
						"panic", r,
						"stack", string(buf[:n]))
				}
			}()
			next(e)
		}
	}
}
