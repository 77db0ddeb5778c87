package testutil

import (
	"strings"
	"time"

	"plugbot/pkg/bot"
)

// Methods recorded by MockResponder
const (
	MethodSendMessage    = "sendMessage"
	MethodAnswerCallback = "answerCallbackQuery"
	MethodRemoveKeyboard = "editMessageReplyMarkup"
	MethodAnswerInline   = "answerInlineQuery"
	MethodChatAction     = "sendChatAction"
	MethodSendDocument   = "sendDocument"
	MethodSetCommands    = "setMyCommands"
)

// Call records one outbound call for testing/verification
type Call struct {
	Timestamp time.Time
	Method    string
	ChatID    int64
	Text      string

	// Method specific payloads
	Options    *bot.SendOptions
	CallbackID string
	Alert      bool
	InlineID   string
	Results    []bot.InlineResult
	Document   *bot.Document
	Commands   []bot.Command
}

// FilterCalls returns the calls of method.
func FilterCalls(calls []Call, method string) []Call {
	var filtered []Call
	for _, call := range calls {
		if call.Method == method {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// FindCallWithText finds the latest call of method whose text contains substr.
func FindCallWithText(calls []Call, method, substr string) *Call {
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		if call.Method == method && strings.Contains(call.Text, substr) {
			return &call
		}
	}
	return nil
}

// Texts returns the texts of all messages sent to chatID, in order.
func Texts(calls []Call, chatID int64) []string {
	var texts []string
	for _, call := range calls {
		if call.Method == MethodSendMessage && call.ChatID == chatID {
			texts = append(texts, call.Text)
		}
	}
	return texts
}
