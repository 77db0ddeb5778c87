package store

import (
	"context"
	"path/filepath"
	"testing"

	"plugbot/pkg/bot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "bot.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// stores returns every implementation so the contract is checked on each.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": openSQLite(t),
	}
}

func TestPluginEnablement(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			enabled, err := s.IsPluginEnabled(ctx, "echo")
			require.NoError(t, err)
			assert.False(t, enabled, "unknown plugins are disabled")

			require.NoError(t, s.SetPluginEnabled(ctx, "echo", true))
			require.NoError(t, s.SetPluginEnabled(ctx, "dice", true))
			require.NoError(t, s.SetPluginEnabled(ctx, "weather", false))

			names, err := s.EnabledPlugins(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"dice", "echo"}, names)

			// Upsert flips the flag in place
			require.NoError(t, s.SetPluginEnabled(ctx, "echo", false))
			enabled, err = s.IsPluginEnabled(ctx, "echo")
			require.NoError(t, err)
			assert.False(t, enabled)

			names, err = s.EnabledPlugins(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"dice"}, names)
		})
	}
}

func TestBlacklist(t *testing.T) {
	ctx := context.Background()
	const chat = int64(-1001)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			disabled, err := s.IsBlacklisted(ctx, chat, "echo")
			require.NoError(t, err)
			assert.False(t, disabled)

			changed, err := s.SetBlacklisted(ctx, chat, "echo", true)
			require.NoError(t, err)
			assert.True(t, changed)

			// Second insert is a no-op, not an error
			changed, err = s.SetBlacklisted(ctx, chat, "echo", true)
			require.NoError(t, err)
			assert.False(t, changed)

			disabled, err = s.IsBlacklisted(ctx, chat, "echo")
			require.NoError(t, err)
			assert.True(t, disabled)

			other, err := s.IsBlacklisted(ctx, chat+1, "echo")
			require.NoError(t, err)
			assert.False(t, other, "entries are per chat")

			changed, err = s.SetBlacklisted(ctx, chat, "echo", false)
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = s.SetBlacklisted(ctx, chat, "echo", false)
			require.NoError(t, err)
			assert.False(t, changed)

			disabled, err = s.IsBlacklisted(ctx, chat, "echo")
			require.NoError(t, err)
			assert.False(t, disabled)
		})
	}
}

func TestSQLite_ChatsUsersMembers(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	require.NoError(t, s.RecordChatSeen(ctx, bot.Chat{ID: -5, Type: bot.ChatGroup, Title: "Old"}))
	require.NoError(t, s.RecordChatSeen(ctx, bot.Chat{ID: -5, Type: bot.ChatGroup, Title: "New"}))

	var title string
	require.NoError(t, s.db.QueryRow(`SELECT title FROM bot_chats WHERE id = -5`).Scan(&title))
	assert.Equal(t, "New", title)

	user := bot.User{ID: 7, FirstName: "Ada", Username: "ada"}
	require.NoError(t, s.RecordUserSeen(ctx, -5, user))
	require.NoError(t, s.RecordUserSeen(ctx, -5, user))

	var members int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM bot_chat_members WHERE chat_id = -5`).Scan(&members))
	assert.Equal(t, 1, members)

	require.NoError(t, s.ForgetMember(ctx, -5, 7))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM bot_chat_members WHERE chat_id = -5`).Scan(&members))
	assert.Equal(t, 0, members)

	var username string
	require.NoError(t, s.db.QueryRow(`SELECT username FROM bot_users WHERE id = 7`).Scan(&username))
	assert.Equal(t, "ada", username, "forgetting a membership keeps the user")
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "bot.db")

	s, err := OpenSQLite(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.SetPluginEnabled(ctx, "echo", true))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	names, err := s.EnabledPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, names)

	version, err := s.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestMemory_Members(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.RecordUserSeen(ctx, -5, bot.User{ID: 7}))
	require.NoError(t, m.RecordUserSeen(ctx, 0, bot.User{ID: 8}))

	assert.True(t, m.IsMember(-5, 7))
	assert.False(t, m.IsMember(0, 8), "chat id 0 records no membership")

	_, ok := m.User(8)
	assert.True(t, ok)

	require.NoError(t, m.ForgetMember(ctx, -5, 7))
	assert.False(t, m.IsMember(-5, 7))
}
