package echo

import "plugbot/pkg/plugin"

// Name is the name the plugin is registered under.
const Name = "echo"

func init() {
	plugin.Register(plugin.PluginInfo{
		Name:        Name,
		Description: "Repeats text back, in chats and inline",
		Priority:    plugin.PriorityDefault,
		Factory:     createPlugin,
	})
}

func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	return New(ctx.BotUsername), nil
}
