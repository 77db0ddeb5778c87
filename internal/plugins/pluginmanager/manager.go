// Package pluginmanager is the core plugin that exposes the plugin lifecycle
// to superusers through chat commands.
package pluginmanager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"plugbot/internal/loader"
	"plugbot/internal/store"
	"plugbot/pkg/bot"
	"plugbot/pkg/handler"
	"plugbot/pkg/plugin"

	"go.uber.org/zap"
)

// Reply texts
const (
	msgAlreadyActive    = "✅ Plugin %s is already active."
	msgDoesNotExist     = "❌ Plugin %s does not exist."
	msgNotActive        = "❌ Plugin %s is not active."
	msgCoreImmutable    = "❌ Plugin %s is a core plugin and cannot be disabled."
	msgLoadFailed       = "❌ Plugin %s could not be loaded, check the logs."
	msgEnabled          = "✅ Plugin %s enabled."
	msgDisabled         = "✅ Plugin %s disabled."
	msgReloaded         = "✅ Plugin %s reloaded."
	msgReloadedAll      = "✅ All plugins reloaded."
	msgChatEnabled      = "✅ Plugin %s enabled for this chat."
	msgChatDisabled     = "✅ Plugin %s disabled for this chat."
	msgChatAlreadyOn    = "✅ Plugin %s is already enabled for this chat."
	msgChatAlreadyOff   = "✅ Plugin %s is already disabled for this chat."
	msgUsage            = "❌ Usage: /%s <plugin>"
	msgInternalError    = "❌ Something went wrong, check the logs."
	msgNoPlugins        = "No plugins are active."
	msgListHeader       = "<b>Active plugins:</b>"
	msgListDisabledChat = " (disabled here)"
	msgListCore         = " <i>core</i>"
)

// Manager handles the plugin management commands.
type Manager struct {
	manager      plugin.Manager
	store        store.Store
	username     string
	syncCommands bool
	logger       *zap.Logger
}

// NewManager creates a new plugin manager.
func NewManager(manager plugin.Manager, st store.Store, username string, logger *zap.Logger) *Manager {
	return &Manager{
		manager:  manager,
		store:    st,
		username: username,
		logger:   logger.Named("plugin_manager"),
	}
}

func (m *Manager) Name() string { return Name }

func (m *Manager) Handlers() []*handler.Handler {
	return []*handler.Handler{
		handler.NewCommand("list", m.username, m.handleList, handler.Privileged(), handler.LogDebug()),
		handler.NewCommand("enable", m.username, m.handleEnable, handler.Privileged()),
		handler.NewCommand("disable", m.username, m.handleDisable, handler.Privileged()),
		handler.NewCommand("reload", m.username, m.handleReload, handler.Privileged(), handler.Typing()),
		handler.NewCommand("enablechat", m.username, m.handleEnableChat, handler.Privileged(), handler.GroupOnly()),
		handler.NewCommand("disablechat", m.username, m.handleDisableChat, handler.Privileged(), handler.GroupOnly()),
	}
}

func (m *Manager) Commands() []bot.Command {
	return []bot.Command{
		{Command: "list", Description: "List active plugins"},
		{Command: "enable", Description: "<plugin> - Enable a plugin"},
		{Command: "disable", Description: "<plugin> - Disable a plugin"},
		{Command: "reload", Description: "[plugin] - Reload one or all plugins"},
		{Command: "enablechat", Description: "<plugin> - Enable a plugin in this chat"},
		{Command: "disablechat", Description: "<plugin> - Disable a plugin in this chat"},
	}
}

// pluginArg returns the plugin name argument, replying with usage when it
// is missing.
func pluginArg(ctx context.Context, c *handler.Context, command string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(c.Arg(1)))
	if name == "" || strings.ContainsAny(name, " /") {
		c.Reply(ctx, fmt.Sprintf(msgUsage, command))
		return "", false
	}
	return name, true
}

func (m *Manager) handleList(ctx context.Context, c *handler.Context) error {
	active := m.manager.Active()
	if len(active) == 0 {
		return c.Reply(ctx, msgNoPlugins)
	}

	var b strings.Builder
	b.WriteString(msgListHeader)
	for _, info := range active {
		b.WriteString("\n• ")
		b.WriteString(info.Name)
		if info.Core {
			b.WriteString(msgListCore)
		}
		if c.Update.IsGroup() {
			disabled, err := m.manager.IsPluginDisabledForChat(ctx, c.ChatID(), info.Name)
			if err == nil && disabled {
				b.WriteString(msgListDisabledChat)
			}
		}
	}
	return c.ReplyWith(ctx, b.String(), &bot.SendOptions{ParseMode: bot.ParseHTML, DisableWebPagePreview: true})
}

func (m *Manager) handleEnable(ctx context.Context, c *handler.Context) error {
	name, ok := pluginArg(ctx, c, "enable")
	if !ok {
		return nil
	}

	if m.manager.IsLoaded(name) {
		return c.Reply(ctx, fmt.Sprintf(msgAlreadyActive, name))
	}

	err := m.manager.LoadPlugin(ctx, plugin.Path(plugin.NamespaceUser, name))
	switch {
	case errors.Is(err, loader.ErrResolution):
		return c.Reply(ctx, fmt.Sprintf(msgDoesNotExist, name))
	case errors.Is(err, loader.ErrAlreadyLoaded):
		return c.Reply(ctx, fmt.Sprintf(msgAlreadyActive, name))
	case err != nil:
		return c.Reply(ctx, fmt.Sprintf(msgLoadFailed, name))
	}

	// A factory without an entry point loads nothing
	if !m.manager.IsLoaded(name) {
		return c.Reply(ctx, fmt.Sprintf(msgDoesNotExist, name))
	}

	if err := m.store.SetPluginEnabled(ctx, name, true); err != nil {
		c.Reply(ctx, msgInternalError)
		return fmt.Errorf("failed to persist enablement of %s: %w", name, err)
	}
	m.publishCommands(ctx)
	return c.Reply(ctx, fmt.Sprintf(msgEnabled, name))
}

func (m *Manager) handleDisable(ctx context.Context, c *handler.Context) error {
	name, ok := pluginArg(ctx, c, "disable")
	if !ok {
		return nil
	}

	if m.manager.IsCore(name) {
		return c.Reply(ctx, fmt.Sprintf(msgCoreImmutable, name))
	}

	err := m.manager.UnloadPlugin(ctx, name)
	if errors.Is(err, loader.ErrNotFound) {
		if !m.manager.Exists(name) {
			return c.Reply(ctx, fmt.Sprintf(msgDoesNotExist, name))
		}
		return c.Reply(ctx, fmt.Sprintf(msgNotActive, name))
	}
	if err != nil {
		c.Reply(ctx, msgInternalError)
		return fmt.Errorf("failed to unload %s: %w", name, err)
	}

	if err := m.store.SetPluginEnabled(ctx, name, false); err != nil {
		c.Reply(ctx, msgInternalError)
		return fmt.Errorf("failed to persist disablement of %s: %w", name, err)
	}
	m.publishCommands(ctx)
	return c.Reply(ctx, fmt.Sprintf(msgDisabled, name))
}

func (m *Manager) handleReload(ctx context.Context, c *handler.Context) error {
	name := strings.ToLower(strings.TrimSpace(c.Arg(1)))
	if name == "" {
		if err := m.manager.ReloadAllPlugins(ctx); err != nil {
			c.Reply(ctx, msgInternalError)
			return fmt.Errorf("failed to reload plugins: %w", err)
		}
		m.publishCommands(ctx)
		return c.Reply(ctx, msgReloadedAll)
	}

	err := m.manager.ReloadPlugin(ctx, name)
	var le *loader.LoadError
	switch {
	case errors.Is(err, loader.ErrNotFound):
		return c.Reply(ctx, fmt.Sprintf(msgNotActive, name))
	case errors.As(err, &le):
		return c.Reply(ctx, fmt.Sprintf(msgLoadFailed, name))
	case errors.Is(err, loader.ErrResolution):
		return c.Reply(ctx, fmt.Sprintf(msgDoesNotExist, name))
	case err != nil:
		c.Reply(ctx, msgInternalError)
		return fmt.Errorf("failed to reload %s: %w", name, err)
	}
	m.publishCommands(ctx)
	return c.Reply(ctx, fmt.Sprintf(msgReloaded, name))
}

// publishCommands refreshes the advertised command list when enabled.
// Failures only get logged.
func (m *Manager) publishCommands(ctx context.Context) {
	if !m.syncCommands {
		return
	}
	if err := m.manager.SyncCommands(ctx); err != nil {
		m.logger.Warn("Failed to publish commands", zap.Error(err))
	}
}

func (m *Manager) handleEnableChat(ctx context.Context, c *handler.Context) error {
	return m.setChat(ctx, c, "enablechat", false)
}

func (m *Manager) handleDisableChat(ctx context.Context, c *handler.Context) error {
	return m.setChat(ctx, c, "disablechat", true)
}

func (m *Manager) setChat(ctx context.Context, c *handler.Context, command string, disable bool) error {
	name, ok := pluginArg(ctx, c, command)
	if !ok {
		return nil
	}

	if !m.manager.Exists(name) {
		return c.Reply(ctx, fmt.Sprintf(msgDoesNotExist, name))
	}
	if disable && m.manager.IsCore(name) {
		return c.Reply(ctx, fmt.Sprintf(msgCoreImmutable, name))
	}

	changed, err := m.store.SetBlacklisted(ctx, c.ChatID(), name, disable)
	if err != nil {
		c.Reply(ctx, msgInternalError)
		return fmt.Errorf("failed to update blacklist of chat %d: %w", c.ChatID(), err)
	}

	m.logger.Info("Chat enablement changed",
		zap.String("plugin", name),
		zap.Int64("chat_id", c.ChatID()),
		zap.Bool("disabled", disable),
		zap.Bool("changed", changed))

	switch {
	case disable && changed:
		return c.Reply(ctx, fmt.Sprintf(msgChatDisabled, name))
	case disable:
		return c.Reply(ctx, fmt.Sprintf(msgChatAlreadyOff, name))
	case changed:
		return c.Reply(ctx, fmt.Sprintf(msgChatEnabled, name))
	default:
		return c.Reply(ctx, fmt.Sprintf(msgChatAlreadyOn, name))
	}
}
