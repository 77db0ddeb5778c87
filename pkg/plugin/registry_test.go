package plugin

import (
	"testing"

	"plugbot/pkg/bot"
	"plugbot/pkg/handler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPlugin implements the Plugin interface for testing
type mockPlugin struct {
	name string
}

func (m *mockPlugin) Name() string                 { return m.name }
func (m *mockPlugin) Handlers() []*handler.Handler { return nil }
func (m *mockPlugin) Commands() []bot.Command      { return nil }

func factoryFor(name string) Factory {
	return func(ctx *Context) (Plugin, error) { return &mockPlugin{name: name}, nil }
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name        string
		info        PluginInfo
		wantErr     bool
		errContains string
	}{
		{
			name: "valid registration",
			info: PluginInfo{
				Name:      "echo",
				Namespace: NamespaceUser,
				Factory:   factoryFor("echo"),
			},
		},
		{
			name:        "empty name",
			info:        PluginInfo{Name: "", Factory: factoryFor("")},
			wantErr:     true,
			errContains: "name cannot be empty",
		},
		{
			name:        "nil factory",
			info:        PluginInfo{Name: "echo"},
			wantErr:     true,
			errContains: "factory cannot be nil",
		},
		{
			name:        "slash in name",
			info:        PluginInfo{Name: "a/b", Factory: factoryFor("a/b")},
			wantErr:     true,
			errContains: "cannot contain",
		},
		{
			name:        "bad namespace",
			info:        PluginInfo{Name: "echo", Namespace: "vendor", Factory: factoryFor("echo")},
			wantErr:     true,
			errContains: "invalid namespace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := registry.Register(tt.info)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_DefaultNamespaceIsUser(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(PluginInfo{Name: "echo", Factory: factoryFor("echo")}))

	assert.NotNil(t, registry.Get(NamespaceUser, "echo"))
	assert.Nil(t, registry.Get(NamespaceCore, "echo"))
	assert.NotNil(t, registry.Resolve("user/echo"))
}

func TestRegistry_PriorityOverride(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(PluginInfo{
		Name:        "echo",
		Description: "Shipped echo",
		Priority:    PriorityDefault,
		Factory:     factoryFor("shipped"),
	}))
	require.NoError(t, registry.Register(PluginInfo{
		Name:        "echo",
		Description: "Private echo",
		Priority:    PriorityOverride,
		Factory:     factoryFor("private"),
	}))

	info := registry.Get(NamespaceUser, "echo")
	require.NotNil(t, info)
	assert.Equal(t, "Private echo", info.Description)

	p, err := info.Factory(nil)
	require.NoError(t, err)
	assert.Equal(t, "private", p.Name())

	// A lower priority registration is skipped without error
	require.NoError(t, registry.Register(PluginInfo{
		Name:        "echo",
		Description: "Late echo",
		Priority:    PriorityDefault,
		Factory:     factoryFor("late"),
	}))
	assert.Equal(t, "Private echo", registry.Get(NamespaceUser, "echo").Description)
	assert.Len(t, registry.Paths(), 1)
}

func TestRegistry_ListSortedByPath(t *testing.T) {
	registry := NewRegistry()
	registry.Register(PluginInfo{Name: "echo", Namespace: NamespaceUser, Factory: factoryFor("echo")})
	registry.Register(PluginInfo{Name: "plugin_manager", Namespace: NamespaceCore, Factory: factoryFor("plugin_manager")})
	registry.Register(PluginInfo{Name: "about", Namespace: NamespaceCore, Factory: factoryFor("about")})

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, "core/about", list[0].Path())
	assert.Equal(t, "core/plugin_manager", list[1].Path())
	assert.Equal(t, "user/echo", list[2].Path())

	assert.Equal(t, []string{"user/echo", "core/plugin_manager", "core/about"}, registry.Paths())
}

func TestRegistry_Clear(t *testing.T) {
	registry := NewRegistry()
	registry.Register(PluginInfo{Name: "echo", Factory: factoryFor("echo")})
	assert.Len(t, registry.Paths(), 1)

	registry.Clear()

	assert.Len(t, registry.Paths(), 0)
	assert.Nil(t, registry.Resolve("user/echo"))
}

func TestParsePath(t *testing.T) {
	ns, name, err := ParsePath("core/plugin_manager")
	require.NoError(t, err)
	assert.Equal(t, NamespaceCore, ns)
	assert.Equal(t, "plugin_manager", name)

	for _, bad := range []string{"echo", "core/", "vendor/echo", "user/a/b"} {
		_, _, err := ParsePath(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "user/echo", Path(NamespaceUser, "echo"))
}

func TestGlobalRegistry(t *testing.T) {
	ClearGlobal()
	defer ClearGlobal()

	require.NoError(t, Register(PluginInfo{
		Name:        "global-test",
		Description: "Testing global registry",
		Factory:     factoryFor("global-test"),
	}))

	assert.NotNil(t, Global().Get(NamespaceUser, "global-test"))
	assert.Len(t, List(), 1)
}
