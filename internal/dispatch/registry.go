// Package dispatch routes updates to plugin handlers. It holds the ordered
// handler registry, the admission pipeline applied to every candidate handler
// and the dispatch loop that ties them together.
package dispatch

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"plugbot/pkg/handler"
)

// ErrGroupNotFound is returned by Unregister for an unknown group id.
var ErrGroupNotFound = errors.New("handler group not found")

type group struct {
	id       int
	plugin   string
	handlers []*handler.Handler
}

// GroupInfo describes one registered group.
type GroupInfo struct {
	ID       int      `json:"id"`
	Plugin   string   `json:"plugin"`
	Handlers []string `json:"handlers"`
}

// Registry is the ordered set of handler groups. Groups are consulted in
// ascending id order and handlers within a group in registration order.
//
// Readers work on an immutable snapshot and never lock. Writers build a new
// snapshot under mu and publish it atomically, so a scan never observes a
// half-registered or half-removed group.
type Registry struct {
	mu       sync.Mutex
	nextID   int
	snapshot atomic.Pointer[[]group]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snapshot.Store(&[]group{})
	return r
}

// Register binds handlers to plugin, stores them as a new group with the
// next id and returns that id.
func (r *Registry) Register(plugin string, handlers []*handler.Handler) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	bound := make([]*handler.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h == nil {
			continue
		}
		bound = append(bound, h.Bind(plugin, id))
	}

	old := *r.snapshot.Load()
	next := make([]group, len(old), len(old)+1)
	copy(next, old)
	next = append(next, group{id: id, plugin: plugin, handlers: bound})
	r.snapshot.Store(&next)
	return id
}

// Unregister removes group id.
func (r *Registry) Unregister(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.snapshot.Load()
	next := make([]group, 0, len(old))
	found := false
	for _, g := range old {
		if g.id == id {
			found = true
			continue
		}
		next = append(next, g)
	}
	if !found {
		return fmt.Errorf("unregister group %d: %w", id, ErrGroupNotFound)
	}
	r.snapshot.Store(&next)
	return nil
}

// Scan yields every handler in priority order from the snapshot current when
// iteration starts.
func (r *Registry) Scan() iter.Seq[*handler.Handler] {
	return func(yield func(*handler.Handler) bool) {
		groups := *r.snapshot.Load()
		for _, g := range groups {
			for _, h := range g.handlers {
				if !yield(h) {
					return
				}
			}
		}
	}
}

// Handlers returns the bound handlers of group id, or nil when it is not
// registered.
func (r *Registry) Handlers(id int) []*handler.Handler {
	for _, g := range *r.snapshot.Load() {
		if g.id == id {
			return g.handlers
		}
	}
	return nil
}

// Groups describes the registered groups in priority order.
func (r *Registry) Groups() []GroupInfo {
	groups := *r.snapshot.Load()
	out := make([]GroupInfo, 0, len(groups))
	for _, g := range groups {
		info := GroupInfo{ID: g.id, Plugin: g.plugin, Handlers: make([]string, 0, len(g.handlers))}
		for _, h := range g.handlers {
			info.Handlers = append(info.Handlers, h.String())
		}
		out = append(out, info)
	}
	return out
}

// Len returns the number of registered groups.
func (r *Registry) Len() int {
	return len(*r.snapshot.Load())
}

// Reset drops every group and restarts group ids at zero.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID = 0
	r.snapshot.Store(&[]group{})
}
