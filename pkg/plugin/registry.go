package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Namespace separates built-in plugins from user-supplied ones.
type Namespace string

// Available namespaces
const (
	NamespaceCore Namespace = "core"
	NamespaceUser Namespace = "user"
)

// Priority constants for plugin registration.
// Higher priority values override lower priority plugins with the same path.
const (
	// PriorityDefault is the default priority for plugins.
	PriorityDefault = 0

	// PriorityOverride is used by private builds to replace a plugin shipped
	// with the bot.
	PriorityOverride = 100
)

// Path returns the qualified path of a plugin ("core/echo").
func Path(ns Namespace, name string) string {
	return string(ns) + "/" + name
}

// ParsePath splits a qualified path into namespace and name.
func ParsePath(path string) (Namespace, string, error) {
	ns, name, ok := strings.Cut(path, "/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid plugin path %q", path)
	}
	switch Namespace(ns) {
	case NamespaceCore, NamespaceUser:
		return Namespace(ns), name, nil
	default:
		return "", "", fmt.Errorf("invalid plugin namespace %q", ns)
	}
}

// PluginInfo contains metadata about a registered plugin factory.
type PluginInfo struct {
	// Name is the plugin name, unique within its namespace.
	Name string

	// Namespace is core for built-in plugins, user otherwise.
	Namespace Namespace

	// Description is a human-readable description of the plugin.
	Description string

	// Priority determines which factory wins when several register the
	// same path. Higher priority wins.
	Priority int

	// Factory creates new instances of the plugin.
	Factory Factory
}

// Path returns the qualified path of the plugin.
func (i PluginInfo) Path() string {
	return Path(i.Namespace, i.Name)
}

// Registry maps qualified plugin paths to factories.
// It supports priority-based override, allowing private implementations
// to replace shipped ones at compile time through import ordering.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]PluginInfo
	order   []string
}

// NewRegistry creates a new plugin factory registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]PluginInfo),
		order:   make([]string, 0),
	}
}

// Register adds a factory to the registry.
// If a factory with the same path already exists, the one with higher
// priority wins. If priorities are equal, the later registration wins.
func (r *Registry) Register(info PluginInfo) error {
	if info.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if strings.Contains(info.Name, "/") {
		return fmt.Errorf("plugin %s: name cannot contain '/'", info.Name)
	}
	if info.Namespace == "" {
		info.Namespace = NamespaceUser
	}
	if info.Namespace != NamespaceCore && info.Namespace != NamespaceUser {
		return fmt.Errorf("plugin %s: invalid namespace %q", info.Name, info.Namespace)
	}
	if info.Factory == nil {
		return fmt.Errorf("plugin %s: factory cannot be nil", info.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := info.Path()
	existing, exists := r.plugins[path]
	if exists && info.Priority < existing.Priority {
		return nil
	}

	r.plugins[path] = info
	if !exists {
		r.order = append(r.order, path)
	}
	return nil
}

// Resolve returns the factory registered at path, or nil.
func (r *Registry) Resolve(path string) *PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.plugins[path]
	if !ok {
		return nil
	}
	return &info
}

// Get returns the factory for name in namespace ns, or nil.
func (r *Registry) Get(ns Namespace, name string) *PluginInfo {
	return r.Resolve(Path(ns, name))
}

// List returns all registered factories sorted by path.
func (r *Registry) List() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]PluginInfo, 0, len(r.plugins))
	for _, path := range r.order {
		result = append(result, r.plugins[path])
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Path() < result[j].Path()
	})
	return result
}

// Paths returns the paths of all registered factories in registration order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Clear removes all registered factories. Useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins = make(map[string]PluginInfo)
	r.order = make([]string, 0)
}

// Global registry instance
var globalRegistry = NewRegistry()

// Register adds a factory to the global registry.
// This is typically called from init() functions in plugin packages.
func Register(info PluginInfo) error {
	return globalRegistry.Register(info)
}

// Global returns the global registry.
func Global() *Registry {
	return globalRegistry
}

// List returns all factories from the global registry.
func List() []PluginInfo {
	return globalRegistry.List()
}

// ClearGlobal clears the global registry. Useful for testing.
func ClearGlobal() {
	globalRegistry.Clear()
}
