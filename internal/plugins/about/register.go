package about

import (
	"plugbot/pkg/plugin"
)

// Name is the name the plugin is registered under.
const Name = "about"

func init() {
	plugin.Register(plugin.PluginInfo{
		Name:        Name,
		Namespace:   plugin.NamespaceCore,
		Description: "Greeting, command help and a daily status report",
		Priority:    plugin.PriorityDefault,
		Factory:     createPlugin,
	})
}

func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	return NewManager(ctx.Manager, ctx.Bot, ctx.Clock, ctx.BotUsername, ctx.OperatorChat, ctx.Logger), nil
}
