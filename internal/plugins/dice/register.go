package dice

import "plugbot/pkg/plugin"

// Name is the name the plugin is registered under.
const Name = "dice"

func init() {
	plugin.Register(plugin.PluginInfo{
		Name:        Name,
		Description: "Rolls dice with a button to roll again",
		Priority:    plugin.PriorityDefault,
		Factory:     createPlugin,
	})
}

func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	return New(ctx.BotUsername, nil), nil
}
