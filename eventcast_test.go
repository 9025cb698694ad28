package eventcast_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miladsoleymani/eventcast"
	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
	"github.com/miladsoleymani/eventcast/plugins/null"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newNull(t *testing.T, extra map[string]any) (*eventcast.Connector, *null.Transport) {
	t.Helper()
	c, err := eventcast.New(eventcast.Config{Broadcaster: "null", Extra: extra})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect() })
	waitFor(t, "connection", func() bool { return c.ConnectionState() == core.Connected })
	return c, c.Transport().(*null.Transport)
}

func TestNew_UnknownBroadcaster(t *testing.T) {
	_, err := eventcast.New(eventcast.Config{Broadcaster: "carrier-pigeon"})

	var ce *core.ConfigurationError
	if !errors.As(err, &ce) || !errors.Is(err, core.ErrUnknownBroadcaster) {
		t.Errorf("err = %v, want ConfigurationError wrapping ErrUnknownBroadcaster", err)
	}
}

func TestScenario_ListenThenEmit(t *testing.T) {
	c, nt := newNull(t, nil)

	var calls atomic.Int32
	var payload atomic.Value
	ch, err := c.Listen("room1", "test", func(e eventcast.Event) {
		calls.Add(1)
		payload.Store(string(e.Data))
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	waitFor(t, "subscription", func() bool { return ch.State() == core.Subscribed })

	nt.Emit("room1", "test", map[string]string{"msg": "hi"})

	if n := calls.Load(); n != 1 {
		t.Fatalf("listener called %d times, want 1", n)
	}
	if got := payload.Load(); got != `{"msg":"hi"}` {
		t.Errorf("payload = %v", got)
	}
}

func TestScenario_LeaveStopsDelivery(t *testing.T) {
	c, nt := newNull(t, nil)

	var calls atomic.Int32
	ch, _ := c.Listen("room1", "test", func(eventcast.Event) { calls.Add(1) })
	waitFor(t, "subscription", func() bool { return ch.State() == core.Subscribed })

	c.Leave("room1")
	nt.Emit("room1", "test", nil)

	if n := calls.Load(); n != 0 {
		t.Errorf("listener called %d times after leave", n)
	}
}

func TestScenario_RejectedPrivateChannel(t *testing.T) {
	c, nt := newNull(t, map[string]any{"reject_authorization": "private-orders.*"})

	var data atomic.Int32
	p, err := c.PrivateChannel("orders.5")
	if err != nil {
		t.Fatalf("private channel: %v", err)
	}
	p.Listen("OrderShipped", func(eventcast.Event) { data.Add(1) })
	waitFor(t, "failure", func() bool { return p.State() == core.Failed })

	var ae *core.AuthorizationError
	if !errors.As(p.Err(), &ae) {
		t.Errorf("err = %v, want AuthorizationError", p.Err())
	}
	nt.Emit("private-orders.5", `App\Events\OrderShipped`, nil)
	if data.Load() != 0 {
		t.Error("listener invoked on a failed channel")
	}
}

func TestScenario_RejectedPresenceChannelFiresNoHere(t *testing.T) {
	c, _ := newNull(t, map[string]any{"reject_authorization": []any{"presence-#"}})

	var here atomic.Int32
	p, _ := c.PresenceChannel("orders.5")
	p.Here(func([]eventcast.Member) { here.Add(1) })
	waitFor(t, "failure", func() bool { return p.State() == core.Failed })

	if here.Load() != 0 {
		t.Error("here fired for a rejected presence channel")
	}
}

func TestScenario_NamespacedEvents(t *testing.T) {
	c, err := eventcast.New(broadcaster.Config{Broadcaster: "null", Namespace: "App.Events"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Disconnect()
	nt := c.Transport().(*null.Transport)

	var got atomic.Value
	ch, _ := c.Listen("orders", "OrderShipped", func(e eventcast.Event) { got.Store(e.Name) })
	waitFor(t, "subscription", func() bool { return ch.State() == core.Subscribed })

	nt.Emit("orders", `App\Events\OrderShipped`, nil)
	if got.Load() != `App\Events\OrderShipped` {
		t.Errorf("event name = %v", got.Load())
	}
}

func TestNew_RecoversListenerPanics(t *testing.T) {
	c, nt := newNull(t, nil)

	var after atomic.Int32
	ch, _ := c.Listen("room1", "boom", func(eventcast.Event) { panic("listener bug") })
	ch.Listen("boom", func(eventcast.Event) { after.Add(1) })
	waitFor(t, "subscription", func() bool { return ch.State() == core.Subscribed })

	nt.Emit("room1", "boom", nil)
	if after.Load() != 1 {
		t.Error("second listener did not run after the first panicked")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventcast.yaml")
	content := `
broadcast:
  broadcaster: "null"
  namespace: ""
logging:
  level: error
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := eventcast.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer c.Disconnect()

	if got := c.Formatter().Format("OrderShipped"); got != "OrderShipped" {
		t.Errorf("format = %q, namespace should be disabled", got)
	}
}
