// Package config loads the YAML configuration file and watches it for
// changes. All durations are Go duration strings (e.g. "30s", "2m").
package config

import (
	"bytes"
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

// ChannelsConfig names the chats that entity kinds render into.
type ChannelsConfig struct {
	Offers    int64 `yaml:"offers"`
	Votings   int64 `yaml:"votings"`
	Vacations int64 `yaml:"vacations"`
}

type LifecycleConfig struct {
	DiscoveryInterval string `yaml:"discovery_interval"`
	Slack             string `yaml:"slack"`
	BackstopAt        string `yaml:"backstop_at"`
	Timezone          string `yaml:"timezone"`
}

type NotifyConfig struct {
	RatePerSec int `yaml:"rate_per_sec"`
}

// Load reads and decodes the config file. Unknown keys are rejected so
// typos surface at startup instead of being silently ignored.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data.db"
	}
	if c.Lifecycle.BackstopAt == "" {
		c.Lifecycle.BackstopAt = "23:59"
	}
	if c.Notify.RatePerSec <= 0 {
		c.Notify.RatePerSec = 1
	}
}

func (c *Config) validate() error {
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"lifecycle.discovery_interval", c.Lifecycle.DiscoveryInterval},
		{"lifecycle.slack", c.Lifecycle.Slack},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
