// Package config loads eventcast settings from YAML and the environment.
package config

import (
	"time"

	"github.com/miladsoleymani/eventcast/broadcaster"
)

// Config is the top-level configuration.
type Config struct {
	Broadcast broadcaster.Config `yaml:"broadcast"`
	Logging   Logging            `yaml:"logging"`
}

// Logging configures the structured logger.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Broadcast: broadcaster.Config{
			Broadcaster:      "null",
			Namespace:        "App.Events",
			SubscribeTimeout: 10 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "eventcast",
		},
	}
}
