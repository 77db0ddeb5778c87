package pluginmanager_test

import (
	"context"
	"testing"

	"plugbot/internal/plugins/pluginmanager"
	"plugbot/pkg/testutil"

	_ "plugbot/internal/plugins/dice"
	_ "plugbot/internal/plugins/echo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin = testutil.Superuser
	chat  = int64(-500)
)

func setup(t *testing.T) *testutil.Harness {
	t.Helper()
	h := testutil.NewHarness(t, testutil.WithCore(pluginmanager.Name))
	require.NoError(t, h.Loader.LoadCorePlugins(context.Background()))
	return h
}

// say sends text as the superuser in chat and returns the replies.
func say(h *testutil.Harness, from int64, text string) []string {
	h.Bot.Reset()
	h.Send(testutil.Message(chat, from, text))
	return h.Bot.Messages(chat)
}

func TestEnableDisable(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	assert.Equal(t, []string{"✅ Plugin echo enabled."}, say(h, admin, "/enable echo"))
	assert.True(t, h.Loader.IsLoaded("echo"))
	enabled, _ := h.Store.IsPluginEnabled(ctx, "echo")
	assert.True(t, enabled)

	assert.Equal(t, []string{"✅ Plugin echo is already active."}, say(h, admin, "/enable echo"))
	assert.Equal(t, []string{"❌ Plugin weather does not exist."}, say(h, admin, "/enable weather"))
	assert.Equal(t, []string{"❌ Usage: /enable <plugin>"}, say(h, admin, "/enable"))

	assert.Equal(t, []string{"✅ Plugin echo disabled."}, say(h, admin, "/disable echo"))
	assert.False(t, h.Loader.IsLoaded("echo"))
	enabled, _ = h.Store.IsPluginEnabled(ctx, "echo")
	assert.False(t, enabled)

	assert.Equal(t, []string{"❌ Plugin echo is not active."}, say(h, admin, "/disable echo"))
	assert.Equal(t, []string{"❌ Plugin weather does not exist."}, say(h, admin, "/disable weather"))
	assert.Equal(t, []string{"❌ Plugin plugin_manager is a core plugin and cannot be disabled."},
		say(h, admin, "/disable plugin_manager"))
}

func TestCommandsArePrivileged(t *testing.T) {
	h := setup(t)

	assert.Empty(t, say(h, 42, "/enable echo"))
	assert.False(t, h.Loader.IsLoaded("echo"))
}

func TestList(t *testing.T) {
	h := setup(t)
	say(h, admin, "/enable dice")

	replies := say(h, admin, "/list")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "dice")
	assert.Contains(t, replies[0], "plugin_manager <i>core</i>")

	say(h, admin, "/disablechat dice")
	replies = say(h, admin, "/list")
	assert.Contains(t, replies[0], "dice (disabled here)")
}

func TestReload(t *testing.T) {
	h := setup(t)
	say(h, admin, "/enable echo")

	assert.Equal(t, []string{"✅ Plugin echo reloaded."}, say(h, admin, "/reload echo"))
	assert.Equal(t, []string{"❌ Plugin dice is not active."}, say(h, admin, "/reload dice"))
	assert.Equal(t, []string{"✅ All plugins reloaded."}, say(h, admin, "/reload"))

	// echo was persisted by /enable, so it survives the full reload
	assert.True(t, h.Loader.IsLoaded("echo"))
	assert.True(t, h.Loader.IsLoaded(pluginmanager.Name))
}

func TestLifecycleRepublishesCommands(t *testing.T) {
	h := testutil.NewHarness(t, testutil.WithCore(pluginmanager.Name))
	h.Context.SetCommands = true
	require.NoError(t, h.Loader.LoadCorePlugins(context.Background()))

	published := func() [][]string {
		var out [][]string
		for _, call := range testutil.FilterCalls(h.Bot.Calls(), testutil.MethodSetCommands) {
			var names []string
			for _, cmd := range call.Commands {
				names = append(names, cmd.Command)
			}
			out = append(out, names)
		}
		return out
	}

	say(h, admin, "/enable echo")
	require.Len(t, published(), 1)
	assert.Contains(t, published()[0], "echo")

	say(h, admin, "/reload echo")
	assert.Len(t, published(), 1)

	say(h, admin, "/disable echo")
	require.Len(t, published(), 1)
	assert.NotContains(t, published()[0], "echo")
	assert.Contains(t, published()[0], "enable")

	// Failed operations publish nothing
	say(h, admin, "/disable echo")
	assert.Empty(t, published())
}

func TestCommandsNotRepublishedByDefault(t *testing.T) {
	h := setup(t)

	say(h, admin, "/enable echo")
	say(h, admin, "/reload")
	assert.Empty(t, testutil.FilterCalls(h.Bot.Calls(), testutil.MethodSetCommands))
}

func TestChatBlacklist(t *testing.T) {
	h := setup(t)
	say(h, admin, "/enable echo")

	assert.Equal(t, []string{"✅ Plugin echo disabled for this chat."}, say(h, admin, "/disablechat echo"))
	assert.Equal(t, []string{"✅ Plugin echo is already disabled for this chat."}, say(h, admin, "/disablechat echo"))

	// Members are now blocked, superusers bypass
	assert.Empty(t, say(h, 42, "/echo hi"))
	assert.Equal(t, []string{"hi"}, say(h, admin, "/echo hi"))

	assert.Equal(t, []string{"✅ Plugin echo enabled for this chat."}, say(h, admin, "/enablechat echo"))
	assert.Equal(t, []string{"✅ Plugin echo is already enabled for this chat."}, say(h, admin, "/enablechat echo"))
	assert.Equal(t, []string{"hi"}, say(h, 42, "/echo hi"))

	assert.Equal(t, []string{"❌ Plugin plugin_manager is a core plugin and cannot be disabled."},
		say(h, admin, "/disablechat plugin_manager"))
	assert.Equal(t, []string{"❌ Plugin nope does not exist."}, say(h, admin, "/disablechat nope"))
}

func TestChatCommandsAreGroupOnly(t *testing.T) {
	h := setup(t)

	h.Send(testutil.Message(admin, admin, "/disablechat echo"))
	assert.Empty(t, h.Bot.Calls())
}
