package handler

import (
	"context"
	"errors"

	"plugbot/pkg/bot"

	"go.uber.org/zap"
)

// ErrNoChat is returned by Reply for updates that have no chat to reply to.
var ErrNoChat = errors.New("update has no chat")

// Context is passed to a callback for one admitted update.
type Context struct {
	Update  *bot.Update
	Match   *Match
	Handler *Handler
	Bot     bot.Responder
	Logger  *zap.Logger
	TraceID string
}

// Arg returns capture group i of the match.
func (c *Context) Arg(i int) string {
	return c.Match.Group(i)
}

// ChatID returns the chat the update belongs to, including the chat of the
// message a callback query came from.
func (c *Context) ChatID() int64 {
	if id := c.Update.ChatID(); id != 0 {
		return id
	}
	if c.Update.Callback != nil {
		return c.Update.Callback.ChatID
	}
	return 0
}

// Reply sends text to the update's chat without link previews.
func (c *Context) Reply(ctx context.Context, text string) error {
	return c.ReplyWith(ctx, text, &bot.SendOptions{DisableWebPagePreview: true})
}

// ReplyWith sends text to the update's chat with explicit options.
func (c *Context) ReplyWith(ctx context.Context, text string, opts *bot.SendOptions) error {
	chatID := c.ChatID()
	if chatID == 0 {
		return ErrNoChat
	}
	return c.Bot.SendMessage(ctx, chatID, text, opts)
}
