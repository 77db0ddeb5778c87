package telegram

import (
	"testing"
	"time"

	"plugbot/pkg/bot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Message(t *testing.T) {
	raw := `{"update_id":10,"message":{"message_id":5,"date":1767268800,
		"chat":{"id":-100,"type":"supergroup","title":"Dev"},
		"from":{"id":42,"first_name":"Ada","username":"ada"},
		"text":"/echo hi"}}`

	u, err := Normalize([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, int64(10), u.ID)
	assert.Equal(t, bot.KindMessage, u.Kind)
	assert.Equal(t, &bot.Chat{ID: -100, Type: bot.ChatSupergroup, Title: "Dev"}, u.Chat)
	assert.Equal(t, int64(42), u.UserID())
	assert.Equal(t, "ada", u.From.Username)
	assert.Equal(t, int64(5), u.MessageID)
	assert.Equal(t, "/echo hi", u.Text)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), u.Date)
	assert.JSONEq(t, raw, string(u.Raw))
}

func TestNormalize_Kinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind bot.Kind
		text string
	}{
		{
			name: "edited message",
			raw:  `{"update_id":1,"edited_message":{"message_id":1,"date":1,"chat":{"id":5,"type":"private","first_name":"Ada"},"from":{"id":5},"text":"fixed"}}`,
			kind: bot.KindEditedMessage,
			text: "fixed",
		},
		{
			name: "callback query",
			raw:  `{"update_id":2,"callback_query":{"id":"cb1","from":{"id":5},"data":"dice:2d6","message":{"message_id":9,"date":100,"chat":{"id":5,"type":"private"}}}}`,
			kind: bot.KindCallbackQuery,
			text: "dice:2d6",
		},
		{
			name: "inline query",
			raw:  `{"update_id":3,"inline_query":{"id":"iq1","from":{"id":5},"query":"echo hey"}}`,
			kind: bot.KindInlineQuery,
			text: "echo hey",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Normalize([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, u.Kind)
			assert.Equal(t, tt.text, u.MatchText())
			assert.Equal(t, int64(5), u.UserID())
		})
	}
}

func TestNormalize_CallbackCarriesOrigin(t *testing.T) {
	raw := `{"update_id":2,"callback_query":{"id":"cb1","from":{"id":5},"data":"x",
		"message":{"message_id":9,"date":100,"chat":{"id":-7,"type":"group","title":"G"}}}}`

	u, err := Normalize([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, int64(-7), u.ChatID())
	assert.Equal(t, time.Unix(100, 0).UTC(), u.Date)
	assert.Equal(t, &bot.CallbackQuery{ID: "cb1", Data: "x", ChatID: -7, MessageID: 9}, u.Callback)
}

func TestNormalize_InlineMessageCallback(t *testing.T) {
	raw := `{"update_id":2,"callback_query":{"id":"cb1","from":{"id":5},"data":"x","inline_message_id":"AAA"}}`

	u, err := Normalize([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, u.Chat)
	assert.Equal(t, "AAA", u.Callback.InlineMessageID)
}

func TestNormalize_ServiceMessages(t *testing.T) {
	raw := `{"update_id":4,"message":{"message_id":1,"date":1,"chat":{"id":-1,"type":"group","title":"G"},"from":{"id":2},
		"caption":"cat","new_chat_members":[{"id":3,"first_name":"New"},{"id":4,"is_bot":true}],
		"left_chat_member":{"id":6}}}`

	u, err := Normalize([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "cat", u.Caption)
	require.Len(t, u.NewChatMembers, 2)
	assert.Equal(t, "New", u.NewChatMembers[0].FirstName)
	assert.True(t, u.NewChatMembers[1].IsBot)
	require.NotNil(t, u.LeftChatMember)
	assert.Equal(t, int64(6), u.LeftChatMember.ID)
}

func TestNormalize_Errors(t *testing.T) {
	_, err := Normalize([]byte(`{"update_id":1,"channel_post":{"message_id":1}}`))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Normalize([]byte(`{not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
}
