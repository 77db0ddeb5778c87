package plugin

import (
	"plugbot/internal/clock"
	"plugbot/internal/store"
	"plugbot/pkg/bot"

	"go.uber.org/zap"
)

// SuperuserSet answers whether a user is a superuser.
type SuperuserSet interface {
	IsSuperuser(userID int64) bool
}

// Context provides dependencies to plugins during construction.
// It wraps the shared services in a single struct for cleaner factory
// signatures.
type Context struct {
	// Bot sends messages and answers interactions.
	Bot bot.Responder

	// Store is the persistence handle (enablement, blacklist, chats, users).
	Store store.Store

	// Manager exposes plugin lifecycle operations.
	Manager Manager

	// Superusers is the live superuser set.
	Superusers SuperuserSet

	// Logger is a structured logger for the plugin to use.
	// Plugins should use logger.Named("pluginname") for namespacing.
	Logger *zap.Logger

	// Clock is the time source.
	Clock clock.Clock

	// BotUsername is the bot's own username without '@'.
	BotUsername string

	// OperatorChat receives operational notices; 0 disables them.
	OperatorChat int64

	// SetCommands republishes the command list after lifecycle changes.
	SetCommands bool
}

// NewContext creates a new plugin context with all required dependencies.
func NewContext(
	responder bot.Responder,
	st store.Store,
	superusers SuperuserSet,
	logger *zap.Logger,
	clk clock.Clock,
	botUsername string,
	operatorChat int64,
) *Context {
	return &Context{
		Bot:          responder,
		Store:        st,
		Superusers:   superusers,
		Logger:       logger,
		Clock:        clk,
		BotUsername:  botUsername,
		OperatorChat: operatorChat,
	}
}
