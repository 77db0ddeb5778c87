package testutil

import (
	"strconv"
	"sync/atomic"
	"time"

	"plugbot/pkg/bot"
)

var nextUpdateID atomic.Int64

// ChatFor returns a private chat for positive ids and a supergroup for
// negative ones, mirroring Telegram's id ranges.
func ChatFor(chatID int64) *bot.Chat {
	if chatID < 0 {
		return &bot.Chat{ID: chatID, Type: bot.ChatSupergroup, Title: "Group " + strconv.FormatInt(-chatID, 10)}
	}
	return &bot.Chat{ID: chatID, Type: bot.ChatPrivate}
}

// UserFor returns a user with a predictable name.
func UserFor(userID int64) *bot.User {
	return &bot.User{ID: userID, FirstName: "User" + strconv.FormatInt(userID, 10)}
}

// Message builds a new text message from userID in chatID.
func Message(chatID, userID int64, text string) *bot.Update {
	id := nextUpdateID.Add(1)
	return &bot.Update{
		ID:        id,
		Kind:      bot.KindMessage,
		Chat:      ChatFor(chatID),
		From:      UserFor(userID),
		MessageID: id,
		Text:      text,
		Date:      time.Now(),
	}
}

// Edited builds an edited text message.
func Edited(chatID, userID int64, text string) *bot.Update {
	u := Message(chatID, userID, text)
	u.Kind = bot.KindEditedMessage
	return u
}

// Callback builds a button press on a message sent at date.
func Callback(chatID, userID int64, data string, date time.Time) *bot.Update {
	id := nextUpdateID.Add(1)
	return &bot.Update{
		ID:        id,
		Kind:      bot.KindCallbackQuery,
		Chat:      ChatFor(chatID),
		From:      UserFor(userID),
		MessageID: id,
		Date:      date,
		Callback: &bot.CallbackQuery{
			ID:        "cb" + strconv.FormatInt(id, 10),
			Data:      data,
			ChatID:    chatID,
			MessageID: id,
		},
	}
}

// Inline builds an inline query.
func Inline(userID int64, query string) *bot.Update {
	id := nextUpdateID.Add(1)
	return &bot.Update{
		ID:     id,
		Kind:   bot.KindInlineQuery,
		From:   UserFor(userID),
		Inline: &bot.InlineQuery{ID: "iq" + strconv.FormatInt(id, 10), Query: query},
	}
}

// Superusers is a fixed superuser set.
type Superusers map[int64]bool

// IsSuperuser implements the superuser set interfaces.
func (s Superusers) IsSuperuser(userID int64) bool { return s[userID] }
