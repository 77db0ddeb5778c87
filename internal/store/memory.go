package store

import (
	"context"
	"sort"
	"sync"

	"plugbot/pkg/bot"
)

type blacklistKey struct {
	chatID int64
	plugin string
}

type memberKey struct {
	chatID int64
	userID int64
}

// Memory is an in-process Store for tests and throwaway runs.
type Memory struct {
	mu        sync.RWMutex
	plugins   map[string]bool
	blacklist map[blacklistKey]struct{}
	chats     map[int64]bot.Chat
	users     map[int64]bot.User
	members   map[memberKey]struct{}
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		plugins:   make(map[string]bool),
		blacklist: make(map[blacklistKey]struct{}),
		chats:     make(map[int64]bot.Chat),
		users:     make(map[int64]bot.User),
		members:   make(map[memberKey]struct{}),
	}
}

func (m *Memory) EnabledPlugins(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, enabled := range m.plugins {
		if enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) SetPluginEnabled(ctx context.Context, name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins[name] = enabled
	return nil
}

func (m *Memory) IsPluginEnabled(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plugins[name], nil
}

func (m *Memory) IsBlacklisted(ctx context.Context, chatID int64, plugin string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blacklist[blacklistKey{chatID, plugin}]
	return ok, nil
}

func (m *Memory) SetBlacklisted(ctx context.Context, chatID int64, plugin string, disabled bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := blacklistKey{chatID, plugin}
	_, exists := m.blacklist[key]
	if disabled == exists {
		return false, nil
	}
	if disabled {
		m.blacklist[key] = struct{}{}
	} else {
		delete(m.blacklist, key)
	}
	return true, nil
}

func (m *Memory) RecordChatSeen(ctx context.Context, chat bot.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chat.ID] = chat
	return nil
}

func (m *Memory) RecordUserSeen(ctx context.Context, chatID int64, user bot.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	if chatID != 0 {
		m.members[memberKey{chatID, user.ID}] = struct{}{}
	}
	return nil
}

func (m *Memory) ForgetMember(ctx context.Context, chatID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, memberKey{chatID, userID})
	return nil
}

func (m *Memory) Close() error { return nil }

// Chat returns a recorded chat.
func (m *Memory) Chat(id int64) (bot.Chat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	return c, ok
}

// User returns a recorded user.
func (m *Memory) User(id int64) (bot.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok
}

// IsMember reports whether userID is recorded as a member of chatID.
func (m *Memory) IsMember(chatID, userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[memberKey{chatID, userID}]
	return ok
}
