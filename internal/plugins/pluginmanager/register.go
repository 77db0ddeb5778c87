package pluginmanager

import (
	"fmt"

	"plugbot/pkg/plugin"
)

// Name is the name the plugin is registered under.
const Name = "plugin_manager"

func init() {
	plugin.Register(plugin.PluginInfo{
		Name:        Name,
		Namespace:   plugin.NamespaceCore,
		Description: "Lists, enables, disables and reloads plugins globally and per chat",
		Priority:    plugin.PriorityDefault,
		Factory:     createPlugin,
	})
}

// createPlugin creates a new plugin manager instance from the plugin context.
func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	if ctx.Manager == nil {
		return nil, fmt.Errorf("plugin manager requires a lifecycle manager")
	}
	if ctx.Store == nil {
		return nil, fmt.Errorf("plugin manager requires a store")
	}
	m := NewManager(ctx.Manager, ctx.Store, ctx.BotUsername, ctx.Logger)
	m.syncCommands = ctx.SetCommands
	return m, nil
}
