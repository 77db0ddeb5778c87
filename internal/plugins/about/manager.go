// Package about is the core plugin answering /start, /help and /about and
// reporting the bot status to the operator chat once a day.
package about

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"plugbot/internal/clock"
	"plugbot/pkg/bot"
	"plugbot/pkg/handler"
	"plugbot/pkg/plugin"

	"go.uber.org/zap"
)

// StatusSpec is the schedule of the status report.
const StatusSpec = "0 9 * * *"

// Manager implements the about plugin.
type Manager struct {
	manager      plugin.Manager
	bot          bot.Responder
	clock        clock.Clock
	username     string
	operatorChat int64
	logger       *zap.Logger

	startedAt time.Time
}

// NewManager creates the about plugin.
func NewManager(manager plugin.Manager, responder bot.Responder, clk clock.Clock, username string, operatorChat int64, logger *zap.Logger) *Manager {
	return &Manager{
		manager:      manager,
		bot:          responder,
		clock:        clk,
		username:     username,
		operatorChat: operatorChat,
		logger:       logger.Named("about"),
		startedAt:    clk.Now(),
	}
}

func (m *Manager) Name() string { return Name }

func (m *Manager) Handlers() []*handler.Handler {
	return []*handler.Handler{
		handler.NewCommand("start", m.username, m.handleStart, handler.LogDebug()),
		handler.NewCommand("help", m.username, m.handleHelp, handler.LogDebug()),
		handler.NewCommand("about", m.username, m.handleAbout, handler.LogDebug()),
	}
}

func (m *Manager) Commands() []bot.Command {
	return []bot.Command{
		{Command: "help", Description: "List available commands"},
		{Command: "about", Description: "About this bot"},
	}
}

func (m *Manager) Jobs() []plugin.Job {
	if m.operatorChat == 0 {
		return nil
	}
	return []plugin.Job{{Name: "status", Spec: StatusSpec, Run: m.sendStatus}}
}

func (m *Manager) handleStart(ctx context.Context, c *handler.Context) error {
	name := "there"
	if c.Update.From != nil && c.Update.From.FirstName != "" {
		name = c.Update.From.FirstName
	}
	return c.Reply(ctx, fmt.Sprintf("Hi %s! Send /help to see what I can do.", name))
}

// HelpText renders the command list.
func HelpText(commands []bot.Command) string {
	if len(commands) == 0 {
		return "No commands available."
	}
	var b strings.Builder
	b.WriteString("<b>Commands:</b>")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "\n/%s %s", cmd.Command, html.EscapeString(cmd.Description))
	}
	return b.String()
}

func (m *Manager) handleHelp(ctx context.Context, c *handler.Context) error {
	return c.ReplyWith(ctx, HelpText(m.manager.Commands()), &bot.SendOptions{ParseMode: bot.ParseHTML, DisableWebPagePreview: true})
}

func (m *Manager) handleAbout(ctx context.Context, c *handler.Context) error {
	return c.ReplyWith(ctx, m.status(), &bot.SendOptions{ParseMode: bot.ParseHTML, DisableWebPagePreview: true})
}

func (m *Manager) status() string {
	active := m.manager.Active()
	names := make([]string, 0, len(active))
	for _, info := range active {
		names = append(names, info.Name)
	}
	uptime := m.clock.Since(m.startedAt).Truncate(time.Second)

	return fmt.Sprintf("<b>@%s</b>\nUptime: %s\nPlugins (%d): %s",
		html.EscapeString(m.username), uptime, len(names), html.EscapeString(strings.Join(names, ", ")))
}

func (m *Manager) sendStatus(ctx context.Context) error {
	m.logger.Debug("Sending status report", zap.Int64("chat_id", m.operatorChat))
	return m.bot.SendMessage(ctx, m.operatorChat, m.status(), &bot.SendOptions{ParseMode: bot.ParseHTML})
}
