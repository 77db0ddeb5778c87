// Package bot defines the chat-service facing types shared by the dispatch
// engine and plugins: the normalized Update and the outbound Responder.
//
// The concrete transport lives in internal/telegram, which produces Updates
// and implements Responder. Plugins only ever see these types.
package bot

import (
	"encoding/json"
	"time"
)

// Kind identifies what an Update carries.
type Kind int

const (
	// KindMessage is a new message in a chat.
	KindMessage Kind = iota + 1
	// KindEditedMessage is an edit of an existing message.
	KindEditedMessage
	// KindCallbackQuery is a press on an inline keyboard button.
	KindCallbackQuery
	// KindInlineQuery is an inline query typed in any chat ("@bot query").
	KindInlineQuery
)

// String returns the Bot API name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindEditedMessage:
		return "edited_message"
	case KindCallbackQuery:
		return "callback_query"
	case KindInlineQuery:
		return "inline_query"
	default:
		return "unknown"
	}
}

// MarshalText lets Kind appear by name in logs and JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ChatType is the type of a chat.
type ChatType string

// Available chat types
const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// Chat is the chat an update originated in.
type Chat struct {
	ID    int64    `json:"id"`
	Type  ChatType `json:"type"`
	Title string   `json:"title,omitempty"`
}

// IsGroup reports whether the chat is a group or supergroup.
func (c *Chat) IsGroup() bool {
	if c == nil {
		return false
	}
	return c.Type == ChatGroup || c.Type == ChatSupergroup
}

// User is the acting user of an update.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// CallbackQuery is the interaction artifact of a button press. It must be
// answered, and the keyboard it came from may be removed.
type CallbackQuery struct {
	ID              string `json:"id"`
	Data            string `json:"data,omitempty"`
	ChatID          int64  `json:"chat_id,omitempty"`
	MessageID       int64  `json:"message_id,omitempty"`
	InlineMessageID string `json:"inline_message_id,omitempty"`
}

// InlineQuery is an inline query awaiting a result set.
type InlineQuery struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// Update is one normalized inbound event.
//
// An Update is treated as immutable once received. The only mutation the
// dispatcher performs is NormalizeCaption.
type Update struct {
	ID        int64     `json:"update_id"`
	Kind      Kind      `json:"kind"`
	Chat      *Chat     `json:"chat,omitempty"`
	From      *User     `json:"from,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Date      time.Time `json:"date"`

	Callback *CallbackQuery `json:"callback_query,omitempty"`
	Inline   *InlineQuery   `json:"inline_query,omitempty"`

	// Service messages
	NewChatMembers []User `json:"new_chat_members,omitempty"`
	LeftChatMember *User  `json:"left_chat_member,omitempty"`

	// Raw is the original payload, kept for error reports.
	Raw json.RawMessage `json:"-"`
}

// NormalizeCaption copies a media caption into Text so text predicates also
// match captioned photos and documents.
func (u *Update) NormalizeCaption() {
	if u.Caption != "" {
		u.Text = u.Caption
	}
}

// MatchText returns the text a predicate should inspect for this kind of
// update.
func (u *Update) MatchText() string {
	switch u.Kind {
	case KindCallbackQuery:
		if u.Callback != nil {
			return u.Callback.Data
		}
		return ""
	case KindInlineQuery:
		if u.Inline != nil {
			return u.Inline.Query
		}
		return ""
	default:
		return u.Text
	}
}

// IsGroup reports whether the update originated in a group chat.
func (u *Update) IsGroup() bool {
	return u.Chat.IsGroup()
}

// ChatID returns the originating chat id, or 0 when the update has no chat
// (inline queries).
func (u *Update) ChatID() int64 {
	if u.Chat == nil {
		return 0
	}
	return u.Chat.ID
}

// UserID returns the acting user id, or 0 when unknown.
func (u *Update) UserID() int64 {
	if u.From == nil {
		return 0
	}
	return u.From.ID
}

// IsMessage reports whether the update is a new or edited message.
func (u *Update) IsMessage() bool {
	return u.Kind == KindMessage || u.Kind == KindEditedMessage
}
