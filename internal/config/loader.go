package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the file.
const (
	EnvToken      = "BOT_TOKEN"
	EnvDatabase   = "BOT_DATABASE"
	EnvSuperusers = "BOT_SUPERUSERS"
	EnvErrorChat  = "BOT_ERROR_CHAT"
	EnvAPIToken   = "BOT_API_TOKEN"
)

// Load reads the configuration with Read and validates it.
func Load(path, envFile string) (*Config, error) {
	cfg, err := Read(path, envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Read reads the configuration without validating it. envFile, when set,
// is loaded into the process environment first (missing files are
// ignored); path may be empty to configure purely from the environment.
func Read(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile parses path over the defaults without consulting the
// environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv(EnvErrorChat); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", EnvErrorChat, err)
		}
		cfg.ErrorChat = id
	}
	if v := os.Getenv(EnvSuperusers); v != "" {
		ids, err := ParseIDs(v)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", EnvSuperusers, err)
		}
		cfg.Superusers = ids
	}
	return nil
}

// ParseIDs parses a comma separated list of user ids.
func ParseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Watch reloads path whenever it changes and passes the new configuration
// to fn. Reloads that fail to parse or validate are logged and skipped. The
// containing directory is watched so editors that replace the file are
// picked up. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *zap.Logger, fn func(*Config)) error {
	logger = logger.Named("config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	logger.Info("Watching configuration for changes", zap.String("path", abs))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadFile(abs)
			if err == nil {
				err = applyEnv(cfg)
			}
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				logger.Warn("Ignoring invalid configuration change", zap.Error(err))
				continue
			}
			logger.Info("Configuration reloaded")
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}
