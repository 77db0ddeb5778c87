// Package testutil provides testing utilities for plugins and the dispatch
// engine: a recording Responder, update builders and a Harness wiring the
// engine together on an in-memory store.
package testutil

import (
	"context"
	"sync"
	"time"

	"plugbot/pkg/bot"
)

// MockResponder implements bot.Responder by recording every call.
type MockResponder struct {
	mu    sync.Mutex
	calls []Call
	err   error
}

// NewMockResponder creates an empty recorder.
func NewMockResponder() *MockResponder {
	return &MockResponder{calls: make([]Call, 0)}
}

// FailWith makes every subsequent call return err (nil restores success).
// Calls are still recorded.
func (m *MockResponder) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockResponder) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Timestamp = time.Now()
	m.calls = append(m.calls, c)
	return m.err
}

// Calls returns a copy of the recorded calls.
func (m *MockResponder) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Messages returns the texts of all messages sent to chatID.
func (m *MockResponder) Messages(chatID int64) []string {
	return Texts(m.Calls(), chatID)
}

// Alerts returns the texts of the callback answers shown as alerts. Plain
// acknowledgements are left out.
func (m *MockResponder) Alerts() []string {
	var out []string
	for _, c := range FilterCalls(m.Calls(), MethodAnswerCallback) {
		if c.Alert {
			out = append(out, c.Text)
		}
	}
	return out
}

// Reset clears the recorded calls.
func (m *MockResponder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]Call, 0)
}

func (m *MockResponder) SendMessage(ctx context.Context, chatID int64, text string, opts *bot.SendOptions) error {
	return m.record(Call{Method: MethodSendMessage, ChatID: chatID, Text: text, Options: opts})
}

func (m *MockResponder) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return m.record(Call{Method: MethodAnswerCallback, CallbackID: callbackID, Text: text, Alert: alert})
}

func (m *MockResponder) RemoveKeyboard(ctx context.Context, cq *bot.CallbackQuery) error {
	return m.record(Call{Method: MethodRemoveKeyboard, ChatID: cq.ChatID, CallbackID: cq.ID})
}

func (m *MockResponder) AnswerInline(ctx context.Context, queryID string, results []bot.InlineResult, cacheSeconds int, personal bool) error {
	return m.record(Call{Method: MethodAnswerInline, InlineID: queryID, Results: results})
}

func (m *MockResponder) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return m.record(Call{Method: MethodChatAction, ChatID: chatID, Text: action})
}

func (m *MockResponder) SendDocument(ctx context.Context, chatID int64, doc bot.Document) error {
	return m.record(Call{Method: MethodSendDocument, ChatID: chatID, Text: doc.Caption, Document: &doc})
}

func (m *MockResponder) SetCommands(ctx context.Context, commands []bot.Command) error {
	return m.record(Call{Method: MethodSetCommands, Commands: commands})
}

var _ bot.Responder = (*MockResponder)(nil)
