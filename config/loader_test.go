package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Broadcast.Broadcaster != "null" {
		t.Errorf("expected broadcaster null, got %s", cfg.Broadcast.Broadcaster)
	}
	if cfg.Broadcast.Namespace != "App.Events" {
		t.Errorf("expected namespace App.Events, got %s", cfg.Broadcast.Namespace)
	}
	if cfg.Broadcast.SubscribeTimeout != 10*time.Second {
		t.Errorf("expected subscribe timeout 10s, got %v", cfg.Broadcast.SubscribeTimeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
broadcast:
  broadcaster: pubsub
  hosts: ["nats://a:4222", "nats://b:4222"]
  auth:
    endpoint: "http://app.test/broadcasting/auth"
    headers:
      Authorization: "Bearer abc"
    cache_ttl: 30s
  extra:
    subject_prefix: demo
logging:
  level: debug
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	b := cfg.Broadcast
	if b.Broadcaster != "pubsub" || len(b.Hosts) != 2 || b.Hosts[1] != "nats://b:4222" {
		t.Errorf("unexpected broadcast config %+v", b)
	}
	if b.Auth.Headers["Authorization"] != "Bearer abc" || b.Auth.CacheTTL != 30*time.Second {
		t.Errorf("unexpected auth config %+v", b.Auth)
	}
	if v, _ := b.String("subject_prefix"); v != "demo" {
		t.Errorf("expected extra subject_prefix demo, got %q", v)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if b.Namespace != "App.Events" {
		t.Errorf("expected default namespace, got %s", b.Namespace)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("EVENTCAST_BROADCASTER", "socket")
	t.Setenv("EVENTCAST_HOSTS", "ws://a:6001, ws://b:6001")
	t.Setenv("EVENTCAST_NAMESPACE", "none")
	t.Setenv("EVENTCAST_SUBSCRIBE_TIMEOUT", "3s")
	t.Setenv("EVENTCAST_LOG_LEVEL", "warn")

	loadEnv(&cfg)

	if cfg.Broadcast.Broadcaster != "socket" {
		t.Errorf("expected socket, got %s", cfg.Broadcast.Broadcaster)
	}
	if len(cfg.Broadcast.Hosts) != 2 || cfg.Broadcast.Hosts[1] != "ws://b:6001" {
		t.Errorf("unexpected hosts %v", cfg.Broadcast.Hosts)
	}
	if cfg.Broadcast.Namespace != "" {
		t.Errorf("expected namespacing disabled, got %q", cfg.Broadcast.Namespace)
	}
	if cfg.Broadcast.SubscribeTimeout != 3*time.Second {
		t.Errorf("expected 3s, got %v", cfg.Broadcast.SubscribeTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadFromPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "eventcast.yaml")
	if err := os.WriteFile(yamlPath, []byte("broadcast:\n  broadcaster: kafka\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EVENTCAST_BROADCASTER", "rabbitmq")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Broadcast.Broadcaster != "rabbitmq" {
		t.Errorf("env should win over yaml, got %s", cfg.Broadcast.Broadcaster)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty broadcaster", func(c *Config) { c.Broadcast.Broadcaster = "" }, true},
		{"relative endpoint", func(c *Config) { c.Broadcast.Auth.Endpoint = "/broadcasting/auth" }, true},
		{"absolute endpoint", func(c *Config) { c.Broadcast.Auth.Endpoint = "https://app.test/auth" }, false},
		{"negative ttl", func(c *Config) { c.Broadcast.Auth.CacheTTL = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Logging{Level: "warn", Service: "test"})

	log.Info("hidden")
	log.Warn("shown")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "shown" || rec["service"] != "test" {
		t.Errorf("unexpected record %v", rec)
	}
}
