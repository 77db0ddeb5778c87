package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plugbot/pkg/bot"

	"github.com/tidwall/gjson"
)

// ErrUnsupported is returned for update types the engine does not dispatch
// (channel posts, polls, chat member changes, ...).
var ErrUnsupported = errors.New("unsupported update type")

// Normalize maps a raw Bot API update onto bot.Update.
func Normalize(raw json.RawMessage) (*bot.Update, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid update payload")
	}
	root := gjson.ParseBytes(raw)

	u := &bot.Update{
		ID:  root.Get("update_id").Int(),
		Raw: append([]byte(nil), raw...),
	}

	switch {
	case root.Get("message").Exists():
		u.Kind = bot.KindMessage
		fillMessage(u, root.Get("message"))
	case root.Get("edited_message").Exists():
		u.Kind = bot.KindEditedMessage
		fillMessage(u, root.Get("edited_message"))
	case root.Get("callback_query").Exists():
		cq := root.Get("callback_query")
		u.Kind = bot.KindCallbackQuery
		u.From = parseUser(cq.Get("from"))
		u.Callback = &bot.CallbackQuery{
			ID:              cq.Get("id").String(),
			Data:            cq.Get("data").String(),
			InlineMessageID: cq.Get("inline_message_id").String(),
		}
		if msg := cq.Get("message"); msg.Exists() {
			u.Chat = parseChat(msg.Get("chat"))
			u.MessageID = msg.Get("message_id").Int()
			u.Date = unixTime(msg.Get("date"))
			u.Callback.ChatID = u.Chat.ID
			u.Callback.MessageID = u.MessageID
		}
	case root.Get("inline_query").Exists():
		iq := root.Get("inline_query")
		u.Kind = bot.KindInlineQuery
		u.From = parseUser(iq.Get("from"))
		u.Inline = &bot.InlineQuery{
			ID:    iq.Get("id").String(),
			Query: iq.Get("query").String(),
		}
	default:
		return nil, ErrUnsupported
	}
	return u, nil
}

func fillMessage(u *bot.Update, msg gjson.Result) {
	u.Chat = parseChat(msg.Get("chat"))
	if from := msg.Get("from"); from.Exists() {
		u.From = parseUser(from)
	}
	u.MessageID = msg.Get("message_id").Int()
	u.Text = msg.Get("text").String()
	u.Caption = msg.Get("caption").String()
	u.Date = unixTime(msg.Get("date"))

	for _, m := range msg.Get("new_chat_members").Array() {
		u.NewChatMembers = append(u.NewChatMembers, *parseUser(m))
	}
	if left := msg.Get("left_chat_member"); left.Exists() {
		u.LeftChatMember = parseUser(left)
	}
}

func parseChat(r gjson.Result) *bot.Chat {
	title := r.Get("title").String()
	if title == "" {
		title = r.Get("first_name").String()
	}
	return &bot.Chat{
		ID:    r.Get("id").Int(),
		Type:  bot.ChatType(r.Get("type").String()),
		Title: title,
	}
}

func parseUser(r gjson.Result) *bot.User {
	return &bot.User{
		ID:        r.Get("id").Int(),
		FirstName: r.Get("first_name").String(),
		LastName:  r.Get("last_name").String(),
		Username:  r.Get("username").String(),
		IsBot:     r.Get("is_bot").Bool(),
	}
}

func unixTime(r gjson.Result) time.Time {
	if !r.Exists() {
		return time.Time{}
	}
	return time.Unix(r.Int(), 0).UTC()
}
