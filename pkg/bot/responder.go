package bot

import "context"

// Chat actions for SendChatAction.
const (
	ActionTyping         = "typing"
	ActionUploadDocument = "upload_document"
)

// ParseMode selects the markup language of an outgoing text.
type ParseMode string

// Available parse modes
const (
	ParsePlain ParseMode = ""
	ParseHTML  ParseMode = "HTML"
)

// Command is a bot command advertised to the chat service.
type Command struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// Button is a single inline keyboard button carrying callback data.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Keyboard is an inline keyboard, one slice per row.
type Keyboard [][]Button

// SendOptions tunes an outgoing message. A nil *SendOptions sends plain text.
type SendOptions struct {
	ParseMode             ParseMode
	ReplyTo               int64
	DisableWebPagePreview bool
	Keyboard              Keyboard
}

// InlineResult is an article result for an inline query.
type InlineResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Text        string `json:"message_text"`
}

// Document is a file upload.
type Document struct {
	Filename  string
	Content   []byte
	Caption   string
	ParseMode ParseMode
}

// Responder is the outbound half of the transport boundary. Every call may
// block on network I/O and honours ctx.
type Responder interface {
	// SendMessage posts a text message to a chat.
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error

	// AnswerCallback acknowledges a button press. With alert set the text is
	// shown as a modal notice instead of a toast.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error

	// RemoveKeyboard strips the inline keyboard from the message a callback
	// query originated from.
	RemoveKeyboard(ctx context.Context, cb *CallbackQuery) error

	// AnswerInline answers an inline query. Personal results are cached per
	// user only.
	AnswerInline(ctx context.Context, queryID string, results []InlineResult, cacheSeconds int, personal bool) error

	// SendChatAction shows a transient status such as "typing".
	SendChatAction(ctx context.Context, chatID int64, action string) error

	// SendDocument uploads a file to a chat.
	SendDocument(ctx context.Context, chatID int64, doc Document) error

	// SetCommands replaces the advertised command list.
	SetCommands(ctx context.Context, commands []Command) error
}
