package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/miladsoleymani/eventcast/core"
	"github.com/miladsoleymani/eventcast/core/middleware"
)

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	called := false
	l := middleware.Logging(bufferLogger(&buf))(func(core.Event) { called = true })

	l(core.Event{Channel: "orders", Name: "shipped"})

	if !called {
		t.Fatal("listener was not called")
	}
	out := buf.String()
	if !strings.Contains(out, "event dispatched") || !strings.Contains(out, "channel=orders") {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	l := middleware.Recovery(bufferLogger(&buf))(func(core.Event) {
		panic("test panic")
	})

	l(core.Event{Channel: "orders", Name: "shipped"})

	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("expected panic log, got: %s", buf.String())
	}
}

func TestRecovery_NoPanic(t *testing.T) {
	var buf bytes.Buffer
	called := false
	l := middleware.Recovery(bufferLogger(&buf))(func(core.Event) { called = true })

	l(core.Event{})

	if !called || buf.Len() != 0 {
		t.Errorf("called=%v log=%q", called, buf.String())
	}
}

type recordingCollector struct {
	calls []error
}

func (r *recordingCollector) ListenerInvoked(_, _ string, _ time.Duration, err error) {
	r.calls = append(r.calls, err)
}

func TestMetrics(t *testing.T) {
	rc := &recordingCollector{}
	ok := middleware.Metrics(rc)(func(core.Event) {})
	boom := middleware.Recovery(nil)(middleware.Metrics(rc)(func(core.Event) { panic("boom") }))

	ok(core.Event{})
	boom(core.Event{})

	if len(rc.calls) != 2 {
		t.Fatalf("collector calls = %d, want 2", len(rc.calls))
	}
	if rc.calls[0] != nil {
		t.Errorf("successful call recorded error %v", rc.calls[0])
	}
	if rc.calls[1] == nil || !strings.Contains(rc.calls[1].Error(), "boom") {
		t.Errorf("panicking call recorded %v", rc.calls[1])
	}
}

func TestOTelCollector(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	collector, err := middleware.NewOTelCollector(mp)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	l := middleware.Metrics(collector)(func(core.Event) {})
	l(core.Event{Channel: "orders", Name: "shipped"})
	l(core.Event{Channel: "orders", Name: "shipped"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	var calls int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "eventcast.listener.calls" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("calls data is %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				calls += dp.Value
			}
		}
	}
	if calls != 2 {
		t.Errorf("eventcast.listener.calls = %d, want 2", calls)
	}
}
