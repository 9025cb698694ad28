package broadcaster_test

import (
	"errors"
	"testing"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
	"github.com/miladsoleymani/eventcast/internal/mock"
)

func TestCreate_Unknown(t *testing.T) {
	_, err := broadcaster.Create("carrier-pigeon", broadcaster.Config{})

	var cfgErr *core.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	if !errors.Is(err, core.ErrUnknownBroadcaster) {
		t.Errorf("err = %v, want ErrUnknownBroadcaster", err)
	}
}

func TestRegisterAndCreate(t *testing.T) {
	var got broadcaster.Config
	broadcaster.Register("test-mock", func(cfg broadcaster.Config) (core.Transport, error) {
		got = cfg
		return mock.NewTransport(), nil
	})

	tr, err := broadcaster.Create("test-mock", broadcaster.Config{Hosts: []string{"h:1"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tr == nil || got.FirstHost("") != "h:1" {
		t.Errorf("factory got %+v", got)
	}

	found := false
	for _, n := range broadcaster.Names() {
		found = found || n == "test-mock"
	}
	if !found {
		t.Errorf("Names() = %v", broadcaster.Names())
	}
}

func TestConfigExtra(t *testing.T) {
	cfg := broadcaster.Config{Extra: map[string]any{
		"prefix":   "app",
		"replicas": 3,
		"window":   "250ms",
		"float":    float64(7),
		"tls":      true,
	}}

	if v, ok := cfg.String("prefix"); !ok || v != "app" {
		t.Errorf("String = %q %v", v, ok)
	}
	if v, ok := cfg.Int("replicas"); !ok || v != 3 {
		t.Errorf("Int = %d %v", v, ok)
	}
	if v, ok := cfg.Int("float"); !ok || v != 7 {
		t.Errorf("Int(float) = %d %v", v, ok)
	}
	if v, ok := cfg.Duration("window"); !ok || v.Milliseconds() != 250 {
		t.Errorf("Duration = %v %v", v, ok)
	}
	if v, ok := cfg.Bool("tls"); !ok || !v {
		t.Errorf("Bool = %v %v", v, ok)
	}
	if _, ok := cfg.String("missing"); ok {
		t.Error("missing key reported present")
	}
	if cfg.FirstHost("fallback") != "fallback" {
		t.Error("FirstHost ignored fallback")
	}
}

func TestBindings(t *testing.T) {
	var b broadcaster.Bindings

	if b.Wants("shipped") {
		t.Error("unbound event wanted")
	}
	if !b.Wants(core.EventMemberAdded) {
		t.Error("internal events must always be wanted")
	}

	b.Bind("shipped")
	if !b.Wants("shipped") {
		t.Error("bound event not wanted")
	}
	b.Unbind("shipped")
	if b.Wants("shipped") {
		t.Error("unbound event still wanted")
	}

	b.BindAll()
	if !b.Wants("anything") {
		t.Error("BindAll did not widen interest")
	}
	b.UnbindAll()
	if b.Wants("anything") {
		t.Error("UnbindAll did not narrow interest")
	}
}

func TestEnvelope(t *testing.T) {
	env, err := broadcaster.NewEnvelope("private-chat", "client-typing", "s1", map[string]string{"name": "ada"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	wire, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := broadcaster.DecodeEnvelope(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	ev := back.ToEvent()
	if ev.Channel != "private-chat" || ev.Name != "client-typing" || string(ev.Data) != `{"name":"ada"}` {
		t.Errorf("event = %+v", ev)
	}

	if !back.IsEcho("s1") {
		t.Error("own client event not treated as echo")
	}
	if back.IsEcho("s2") {
		t.Error("foreign client event treated as echo")
	}

	server, _ := broadcaster.NewEnvelope("private-chat", "OrderShipped", "s1", nil)
	if server.IsEcho("s1") {
		t.Error("server event treated as echo")
	}

	if _, err := broadcaster.DecodeEnvelope([]byte("{")); err == nil {
		t.Error("expected decode error")
	}
}
