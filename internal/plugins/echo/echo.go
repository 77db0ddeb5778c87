// Package echo repeats text back to the user.
package echo

import (
	"context"
	"regexp"
	"strings"

	"plugbot/pkg/bot"
	"plugbot/pkg/handler"
)

// inlineCache is how long clients may cache inline results, in seconds.
const inlineCache = 60

// Plugin implements the echo plugin.
type Plugin struct {
	username string
}

// New creates the echo plugin for the bot with the given username.
func New(username string) *Plugin {
	return &Plugin{username: username}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Handlers() []*handler.Handler {
	mention := ""
	if p.username != "" {
		mention = "(?:@" + regexp.QuoteMeta(p.username) + ")?"
	}
	return []*handler.Handler{
		handler.MustRegex(`^/e(?:cho)?`+mention+` (.+)$`, p.echo, handler.Describe("/echo")),
		handler.MustInline(`^echo (.+)$`, p.inline, handler.LogDebug(), handler.Describe("inline echo")),
	}
}

func (p *Plugin) Commands() []bot.Command {
	return []bot.Command{{Command: "echo", Description: "<text> - Repeat text"}}
}

func (p *Plugin) echo(ctx context.Context, c *handler.Context) error {
	return c.Reply(ctx, c.Arg(1))
}

func (p *Plugin) inline(ctx context.Context, c *handler.Context) error {
	text := strings.TrimSpace(c.Arg(1))
	results := []bot.InlineResult{{
		ID:          "echo",
		Title:       "Echo",
		Description: text,
		Text:        text,
	}}
	return c.Bot.AnswerInline(ctx, c.Update.Inline.ID, results, inlineCache, false)
}
