// Package config loads the bot configuration from a YAML file overlaid with
// environment variables, and keeps the superuser set current while running.
package config

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"
)

// Config is the bot configuration.
type Config struct {
	Token       string   `yaml:"token"`
	Superusers  []int64  `yaml:"superusers"`
	ErrorChat   int64    `yaml:"error_chat"`
	SetCommands bool     `yaml:"set_commands"`
	Workers     int      `yaml:"workers"`
	Logging     Logging  `yaml:"logging"`
	Database    Database `yaml:"database"`
	Polling     Polling  `yaml:"polling"`
	Webhook     Webhook  `yaml:"webhook"`
	API         API      `yaml:"api"`
}

// Logging configures the zap logger.
type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Database configures the SQLite store.
type Database struct {
	Path string `yaml:"path"`
}

// Polling configures getUpdates long polling.
type Polling struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Webhook configures push delivery. When enabled, polling is not used.
type Webhook struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Listen  string `yaml:"listen"`
	Secret  string `yaml:"secret"`
}

// API configures the HTTP introspection server. An empty Listen disables it.
type API struct {
	Listen string `yaml:"listen"`
	Token  string `yaml:"token"`
}

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		SetCommands: true,
		Workers:     4,
		Logging:     Logging{Level: "info"},
		Database:    Database{Path: "data/bot.db"},
		Polling:     Polling{Timeout: 30 * time.Second},
		Webhook:     Webhook{Listen: ":8443"},
		API:         API{Listen: ":8080"},
	}
}

// Validate checks the configuration for required and inconsistent fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Polling.Timeout < 0 {
		errs = append(errs, errors.New("polling.timeout must not be negative"))
	}
	if c.Webhook.Enabled {
		if c.Webhook.URL == "" {
			errs = append(errs, errors.New("webhook.url is required when the webhook is enabled"))
		}
		if c.Webhook.Listen == "" {
			errs = append(errs, errors.New("webhook.listen is required when the webhook is enabled"))
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Superusers is the live superuser set. It is safe for concurrent use and
// can be replaced while the bot runs.
type Superusers struct {
	ids atomic.Pointer[map[int64]struct{}]
}

// NewSuperusers creates a set holding ids.
func NewSuperusers(ids []int64) *Superusers {
	s := &Superusers{}
	s.Set(ids)
	return s
}

// Set replaces the set.
func (s *Superusers) Set(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	s.ids.Store(&m)
}

// IsSuperuser reports whether userID is in the set.
func (s *Superusers) IsSuperuser(userID int64) bool {
	_, ok := (*s.ids.Load())[userID]
	return ok
}

// List returns the ids in ascending order.
func (s *Superusers) List() []int64 {
	m := *s.ids.Load()
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
