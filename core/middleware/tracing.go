package middleware

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/miladsoleymani/eventcast/core"
)

// Tracing returns middleware that wraps every listener invocation in a
// consumer span. A panicking listener marks its span as failed; the panic
// is re-raised for Recovery to handle.
func Tracing(tp trace.TracerProvider) core.Middleware {
	tracer := tp.Tracer(meterName)
	return func(next core.Listener) core.Listener {
		return func(e core.Event) {
			_, span := tracer.Start(context.Background(), "eventcast.listen "+e.Name,
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("eventcast.channel", e.Channel),
					attribute.String("eventcast.event", e.Name),
					attribute.String("eventcast.socket_id", e.SocketID),
				))
			defer span.End()
			defer func() {
				if r := recover(); r != nil {
					span.SetStatus(codes.Error, fmt.Sprint(r))
					panic(r)
				}
			}()
			next(e)
		}
	}
}
