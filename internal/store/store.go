// Package store persists plugin enablement, per-chat plugin blacklists and
// the chats and users the bot has seen.
package store

import (
	"context"

	"plugbot/pkg/bot"
)

// Store is the persistence boundary of the bot. All calls block and honour
// ctx cancellation.
type Store interface {
	// EnabledPlugins returns the names of user plugins to load at startup.
	EnabledPlugins(ctx context.Context) ([]string, error)

	// SetPluginEnabled upserts the enablement flag of a plugin.
	SetPluginEnabled(ctx context.Context, name string, enabled bool) error

	// IsPluginEnabled reports the stored flag; unknown plugins are disabled.
	IsPluginEnabled(ctx context.Context, name string) (bool, error)

	// IsBlacklisted reports whether plugin is disabled in chatID.
	IsBlacklisted(ctx context.Context, chatID int64, plugin string) (bool, error)

	// SetBlacklisted adds or removes a blacklist entry. changed is false when
	// the entry was already in the requested state.
	SetBlacklisted(ctx context.Context, chatID int64, plugin string, disabled bool) (changed bool, err error)

	// RecordChatSeen upserts a chat.
	RecordChatSeen(ctx context.Context, chat bot.Chat) error

	// RecordUserSeen upserts a user and, when chatID is non-zero, its
	// membership in that chat.
	RecordUserSeen(ctx context.Context, chatID int64, user bot.User) error

	// ForgetMember drops the membership of userID in chatID.
	ForgetMember(ctx context.Context, chatID, userID int64) error

	// Close releases the underlying resources.
	Close() error
}
