// Package plugin provides the plugin contract and the factory registry of the
// bot. Plugin packages register a factory with the global registry from an
// init() function; the loader resolves "core/<name>" and "user/<name>" paths
// against it and builds a fresh instance on every load.
package plugin

import (
	"context"
	"time"

	"plugbot/pkg/bot"
	"plugbot/pkg/handler"
)

// Plugin is the interface every plugin must implement.
type Plugin interface {
	// Name returns the unique identifier of the plugin. It must equal the
	// name the factory was registered under.
	Name() string

	// Handlers returns the routing rules of the plugin in priority order.
	Handlers() []*handler.Handler

	// Commands returns the commands advertised to users.
	Commands() []bot.Command
}

// Starter is an optional interface for plugins that need to do work after
// construction but before their handlers go live. A Start error aborts the
// load.
type Starter interface {
	Start() error
}

// Stopper is an optional interface for plugins holding resources. Stop is
// called when the plugin is unloaded.
type Stopper interface {
	Stop()
}

// Job is a recurring task contributed by a plugin.
type Job struct {
	// Name identifies the job in logs.
	Name string

	// Spec is a cron expression ("0 9 * * *", "@daily", "@every 1h").
	Spec string

	// Run executes one occurrence.
	Run func(ctx context.Context) error
}

// Scheduled is an optional interface for plugins with recurring jobs. Jobs
// are scheduled on load and removed on unload.
type Scheduled interface {
	Jobs() []Job
}

// Info is the public view of an active plugin.
type Info struct {
	Name     string    `json:"name"`
	Core     bool      `json:"core"`
	Enabled  bool      `json:"enabled"`
	Group    int       `json:"group"`
	Handlers int       `json:"handlers"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Manager is the lifecycle surface plugins (the plugin manager in
// particular) get through their Context.
type Manager interface {
	LoadPlugin(ctx context.Context, path string) error
	UnloadPlugin(ctx context.Context, name string) error
	ReloadPlugin(ctx context.Context, name string) error
	ReloadAllPlugins(ctx context.Context) error

	IsLoaded(name string) bool
	IsCore(name string) bool
	Exists(name string) bool
	Active() []Info
	Commands() []bot.Command
	SyncCommands(ctx context.Context) error

	IsPluginDisabledForChat(ctx context.Context, chatID int64, name string) (bool, error)
}

// Factory creates a new plugin instance given a context. A factory returning
// (nil, nil) declares no plugin entry point and is skipped by the loader.
type Factory func(ctx *Context) (Plugin, error)
