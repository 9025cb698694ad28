package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/miladsoleymani/eventcast"

// OTelCollector records listener metrics with OpenTelemetry instruments.
type OTelCollector struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

var _ MetricsCollector = (*OTelCollector)(nil)

// NewOTelCollector creates the instruments on a meter from mp.
func NewOTelCollector(mp metric.MeterProvider) (*OTelCollector, error) {
	meter := mp.Meter(meterName)
	c := &OTelCollector{}
	var err error

	c.calls, err = meter.Int64Counter("eventcast.listener.calls",
		metric.WithDescription("Number of listener invocations"))
	if err != nil {
		return nil, err
	}

	c.failures, err = meter.Int64Counter("eventcast.listener.errors",
		metric.WithDescription("Number of listener invocations that panicked"))
	if err != nil {
		return nil, err
	}

	c.duration, err = meter.Float64Histogram("eventcast.listener.duration_seconds",
		metric.WithDescription("Listener duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *OTelCollector) ListenerInvoked(channel, event string, d time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("event", event),
	)
	c.calls.Add(ctx, 1, attrs)
	if err != nil {
		c.failures.Add(ctx, 1, attrs)
	}
	c.duration.Record(ctx, d.Seconds(), attrs)
}
