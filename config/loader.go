package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "eventcast.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load with an explicit YAML path. A missing file is not an
// error.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays non-empty EVENTCAST_* variables onto cfg.
func loadEnv(cfg *Config) {
	b := &cfg.Broadcast
	setString(&b.Broadcaster, "EVENTCAST_BROADCASTER")
	setList(&b.Hosts, "EVENTCAST_HOSTS")
	setString(&b.Namespace, "EVENTCAST_NAMESPACE")
	setDuration(&b.SubscribeTimeout, "EVENTCAST_SUBSCRIBE_TIMEOUT")
	setString(&b.Auth.Endpoint, "EVENTCAST_AUTH_ENDPOINT")
	setString(&b.Auth.CSRFToken, "EVENTCAST_AUTH_CSRF_TOKEN")
	setDuration(&b.Auth.CacheTTL, "EVENTCAST_AUTH_CACHE_TTL")
	setString(&cfg.Logging.Level, "EVENTCAST_LOG_LEVEL")
	setString(&cfg.Logging.Service, "EVENTCAST_LOG_SERVICE")

	// "none" disables namespacing, since an empty variable is ignored.
	if strings.EqualFold(b.Namespace, "none") {
		b.Namespace = ""
	}
}

func validate(cfg *Config) error {
	if cfg.Broadcast.Broadcaster == "" {
		return errors.New("broadcast.broadcaster is required")
	}
	if cfg.Broadcast.SubscribeTimeout < 0 {
		return errors.New("broadcast.subscribe_timeout must be >= 0")
	}
	if ep := cfg.Broadcast.Auth.Endpoint; ep != "" {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("broadcast.auth.endpoint %q is not an absolute URL", ep)
		}
	}
	if cfg.Broadcast.Auth.CacheTTL < 0 {
		return errors.New("broadcast.auth.cache_ttl must be >= 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
