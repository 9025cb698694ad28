package rabbitmq

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"orders", "orders"},
		{"private-orders.1", "private-orders.1"},
		{"a*b#c", "a_b_c"},
	}
	for _, tt := range tests {
		if got := routingKey(tt.in); got != tt.want {
			t.Errorf("routingKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPresenceUnsupported(t *testing.T) {
	tr := New("amqp://unused")
	_, err := tr.Subscribe(context.Background(), core.SubscribeRequest{Channel: "presence-room", Kind: core.KindPresence})
	if !core.IsUnsupported(err) {
		t.Errorf("err = %v, want UnsupportedCapabilityError", err)
	}
}

func TestSubscribeBeforeOpen(t *testing.T) {
	tr := New("amqp://unused")
	_, err := tr.Subscribe(context.Background(), core.SubscribeRequest{Channel: "orders"})
	if !errors.Is(err, core.ErrTransportClosed) {
		t.Errorf("err = %v, want ErrTransportClosed", err)
	}
}

func TestOptsFromConfig(t *testing.T) {
	tp, err := broadcaster.Create("rabbitmq", broadcaster.Config{
		Hosts: []string{"amqp://h:5672/"},
		Extra: map[string]any{"exchange": "app", "durable_exchange": false, "reconnect_timeout": "1m"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tr := tp.(*Transport)
	if tr.uri != "amqp://h:5672/" || tr.opts.exchange != "app" || tr.opts.durableExchange || tr.opts.reconnectTimeout != time.Minute {
		t.Errorf("transport = %q %+v", tr.uri, tr.opts)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Deliver(e core.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ConnectionChanged(core.ConnectionState, error) {}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// testOpen connects to RabbitMQ or skips the test if RABBITMQ_URL is not set.
func testOpen(t *testing.T, in core.Inbound) *Transport {
	t.Helper()

	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("requires RABBITMQ_URL")
	}

	tr := New(url, WithExchange("eventcast-test"), WithDurableExchange(false))
	if err := tr.Open(context.Background(), in); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := tr.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return tr
}

func TestTransport_ClientEventFanOut(t *testing.T) {
	var a, b recorder
	ta, tb := testOpen(t, &a), testOpen(t, &b)
	ctx := context.Background()

	sa, err := ta.Subscribe(ctx, core.SubscribeRequest{Channel: "private-chat", Kind: core.KindPrivate})
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	sb, err := tb.Subscribe(ctx, core.SubscribeRequest{Channel: "private-chat", Kind: core.KindPrivate})
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	sa.BindAll()
	sb.BindAll()

	if err := sa.Trigger(ctx, "client-typing", map[string]bool{"typing": true}); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for b.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if b.count() != 1 {
		t.Fatalf("b received %d events, want 1", b.count())
	}
	if a.count() != 0 {
		t.Errorf("sender received its own client event")
	}

	if err := sb.Unsubscribe(ctx); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
}
