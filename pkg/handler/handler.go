// Package handler provides the routing rule plugins contribute to the
// dispatch engine: a match predicate, a set of policy annotations and a
// callback.
//
// Handlers are immutable after construction. The registry tags a copy of each
// handler with its owning plugin and priority group via Bind.
package handler

import (
	"context"
	"fmt"
	"time"

	"plugbot/pkg/bot"

	"go.uber.org/zap/zapcore"
)

// Callback runs the business logic of a handler for an admitted update.
type Callback func(ctx context.Context, c *Context) error

// KindSet is a set of update kinds a handler accepts.
type KindSet uint8

// Kinds builds a KindSet.
func Kinds(kinds ...bot.Kind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s |= 1 << uint(k)
	}
	return s
}

// Has reports whether k is in the set.
func (s KindSet) Has(k bot.Kind) bool {
	return s&(1<<uint(k)) != 0
}

// Handler is a single routing rule.
type Handler struct {
	matcher  Matcher
	callback Callback
	kinds    KindSet

	privileged    bool
	groupOnly     bool
	cooldown      time.Duration
	logLevel      zapcore.Level
	deleteButton  bool
	typing        bool
	caseSensitive bool
	description   string

	// Set by Bind at registration time
	plugin string
	group  int
}

// Option customizes a Handler at construction.
type Option func(*Handler)

// Privileged restricts the handler to superusers.
func Privileged() Option {
	return func(h *Handler) { h.privileged = true }
}

// GroupOnly restricts the handler to group chats.
func GroupOnly() Option {
	return func(h *Handler) { h.groupOnly = true }
}

// Cooldown rejects updates younger than d. For callback queries the age is
// measured from the message carrying the button.
func Cooldown(d time.Duration) Option {
	return func(h *Handler) { h.cooldown = d }
}

// HandleEdits makes a message handler also accept edited messages.
func HandleEdits() Option {
	return func(h *Handler) { h.kinds |= Kinds(bot.KindEditedMessage) }
}

// CaseSensitive disables case-insensitive matching of regex patterns.
func CaseSensitive() Option {
	return func(h *Handler) { h.caseSensitive = true }
}

// LogDebug logs invocations at debug instead of info level.
func LogDebug() Option {
	return func(h *Handler) { h.logLevel = zapcore.DebugLevel }
}

// KeepButton keeps the inline keyboard of a callback query in place.
func KeepButton() Option {
	return func(h *Handler) { h.deleteButton = false }
}

// Typing sends a "typing" chat action before the callback runs.
func Typing() Option {
	return func(h *Handler) { h.typing = true }
}

// Describe overrides the description shown in logs and the admin API.
func Describe(s string) Option {
	return func(h *Handler) { h.description = s }
}

// New creates a handler from an arbitrary matcher. It accepts plain messages
// unless the kinds are widened by options.
func New(matcher Matcher, cb Callback, opts ...Option) *Handler {
	h := &Handler{
		matcher:  matcher,
		callback: cb,
		kinds:    Kinds(bot.KindMessage),
		logLevel: zapcore.InfoLevel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRegex creates a message handler matching pattern against message text
// (or caption). Matching is case-insensitive by default.
func NewRegex(pattern string, cb Callback, opts ...Option) (*Handler, error) {
	h := New(nil, cb, opts...)
	m, err := NewRegexMatcher(pattern, h.caseSensitive)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	h.matcher = m
	return h, nil
}

// NewCommand creates a message handler for "/name". username, when set,
// restricts "/name@bot" forms to this bot.
func NewCommand(name, username string, cb Callback, opts ...Option) *Handler {
	return New(NewCommandMatcher(name, username), cb, opts...)
}

// NewCallback creates a callback query handler matching pattern against the
// button data. Matching is case-sensitive and the originating keyboard is
// removed before the callback runs unless KeepButton is given.
func NewCallback(pattern string, cb Callback, opts ...Option) (*Handler, error) {
	opts = append([]Option{CaseSensitive(), func(h *Handler) { h.deleteButton = true }}, opts...)
	h := New(nil, cb, opts...)
	h.kinds = Kinds(bot.KindCallbackQuery)
	m, err := NewRegexMatcher(pattern, h.caseSensitive)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	h.matcher = m
	return h, nil
}

// NewInline creates an inline query handler matching pattern against the
// query text, case-insensitively.
func NewInline(pattern string, cb Callback, opts ...Option) (*Handler, error) {
	h := New(nil, cb, opts...)
	h.kinds = Kinds(bot.KindInlineQuery)
	m, err := NewRegexMatcher(pattern, h.caseSensitive)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	h.matcher = m
	return h, nil
}

// MustRegex is NewRegex that panics on an invalid pattern.
func MustRegex(pattern string, cb Callback, opts ...Option) *Handler {
	h, err := NewRegex(pattern, cb, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// MustCallback is NewCallback that panics on an invalid pattern.
func MustCallback(pattern string, cb Callback, opts ...Option) *Handler {
	h, err := NewCallback(pattern, cb, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// MustInline is NewInline that panics on an invalid pattern.
func MustInline(pattern string, cb Callback, opts ...Option) *Handler {
	h, err := NewInline(pattern, cb, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// Bind returns a copy of h owned by plugin in priority group group.
func (h *Handler) Bind(plugin string, group int) *Handler {
	bound := *h
	bound.plugin = plugin
	bound.group = group
	return &bound
}

// Match runs the predicate. A nil handler or matcher never matches.
func (h *Handler) Match(u *bot.Update) *Match {
	if h == nil || h.matcher == nil {
		return nil
	}
	return h.matcher.Match(u)
}

// Accepts reports whether the handler takes updates of kind k.
func (h *Handler) Accepts(k bot.Kind) bool { return h.kinds.Has(k) }

// Privileged reports whether only superusers may trigger the handler.
func (h *Handler) Privileged() bool { return h.privileged }

// GroupOnly reports whether the handler only runs in group chats.
func (h *Handler) GroupOnly() bool { return h.groupOnly }

// Cooldown returns the minimum update age.
func (h *Handler) Cooldown() time.Duration { return h.cooldown }

// LogLevel returns the level invocations are logged at.
func (h *Handler) LogLevel() zapcore.Level { return h.logLevel }

// DeletesButton reports whether the callback keyboard is removed on admission.
func (h *Handler) DeletesButton() bool { return h.deleteButton }

// SendsTyping reports whether a typing action precedes the callback.
func (h *Handler) SendsTyping() bool { return h.typing }

// Plugin returns the owning plugin name ("" before Bind).
func (h *Handler) Plugin() string { return h.plugin }

// Group returns the priority group (0 before Bind).
func (h *Handler) Group() int { return h.group }

// Callback returns the handler's callback.
func (h *Handler) Callback() Callback { return h.callback }

// Invoke runs the callback.
func (h *Handler) Invoke(ctx context.Context, c *Context) error {
	if h.callback == nil {
		return nil
	}
	return h.callback(ctx, c)
}

// String describes the handler for logs.
func (h *Handler) String() string {
	desc := h.description
	if desc == "" && h.matcher != nil {
		desc = h.matcher.String()
	}
	kind := "message"
	switch {
	case h.kinds.Has(bot.KindCallbackQuery):
		kind = "callback"
	case h.kinds.Has(bot.KindInlineQuery):
		kind = "inline"
	}
	if h.plugin == "" {
		return fmt.Sprintf("%s handler: %s", kind, desc)
	}
	return fmt.Sprintf("%s handler for %s: %s", kind, h.plugin, desc)
}
