// Package telegram is the Bot API transport: an HTTP client implementing
// bot.Responder, the normalizer turning raw updates into bot.Update, a long
// polling loop and a webhook handler.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"plugbot/pkg/bot"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// AllowedUpdates are the update types the bot subscribes to.
var AllowedUpdates = []string{"message", "edited_message", "inline_query", "callback_query"}

// APIError is an unsuccessful Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client talks to the Bot API. Outbound calls share a token bucket so bursts
// stay under the service's flood limits; getUpdates is exempt.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another API server (tests, local API).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit sets the outbound request rate and burst.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewClient creates a client for token.
func NewClient(token string, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		http:    cleanhttp.DefaultPooledClient(),
		limiter: rate.NewLimiter(30, 30),
		logger:  logger.Named("telegram"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// call posts params as JSON and returns the "result" field.
func (c *Client) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}
	return c.callUnlimited(ctx, method, params)
}

func (c *Client) callUnlimited(ctx context.Context, method string, params any) (gjson.Result, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) (gjson.Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("telegram %s: failed to read response: %w", method, err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, &APIError{Method: method, Code: resp.StatusCode, Description: "invalid JSON response"}
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.Get("ok").Bool() {
		apiErr := &APIError{
			Method:      method,
			Code:        int(parsed.Get("error_code").Int()),
			Description: parsed.Get("description").String(),
		}
		if retry := parsed.Get("parameters.retry_after"); retry.Exists() {
			apiErr.RetryAfter = time.Duration(retry.Int()) * time.Second
		}
		return gjson.Result{}, apiErr
	}
	return parsed.Get("result"), nil
}

type inlineKeyboard struct {
	InlineKeyboard bot.Keyboard `json:"inline_keyboard"`
}

type sendMessageParams struct {
	ChatID                int64           `json:"chat_id"`
	Text                  string          `json:"text"`
	ParseMode             bot.ParseMode   `json:"parse_mode,omitempty"`
	ReplyToMessageID      int64           `json:"reply_to_message_id,omitempty"`
	DisableWebPagePreview bool            `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *inlineKeyboard `json:"reply_markup,omitempty"`
}

// SendMessage sends text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *bot.SendOptions) error {
	params := sendMessageParams{ChatID: chatID, Text: text}
	if opts != nil {
		params.ParseMode = opts.ParseMode
		params.ReplyToMessageID = opts.ReplyTo
		params.DisableWebPagePreview = opts.DisableWebPagePreview
		if len(opts.Keyboard) > 0 {
			params.ReplyMarkup = &inlineKeyboard{InlineKeyboard: opts.Keyboard}
		}
	}
	_, err := c.call(ctx, "sendMessage", params)
	return err
}

// AnswerCallback answers a callback query, optionally as an alert.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	_, err := c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
		"show_alert":        alert,
	})
	return err
}

// RemoveKeyboard strips the inline keyboard from the message a callback came
// from.
func (c *Client) RemoveKeyboard(ctx context.Context, cq *bot.CallbackQuery) error {
	params := map[string]any{"reply_markup": inlineKeyboard{InlineKeyboard: bot.Keyboard{}}}
	if cq.InlineMessageID != "" {
		params["inline_message_id"] = cq.InlineMessageID
	} else {
		params["chat_id"] = cq.ChatID
		params["message_id"] = cq.MessageID
	}
	_, err := c.call(ctx, "editMessageReplyMarkup", params)
	return err
}

type inlineArticle struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     struct {
		Text string `json:"message_text"`
	} `json:"input_message_content"`
}

// AnswerInline answers an inline query with article results.
func (c *Client) AnswerInline(ctx context.Context, queryID string, results []bot.InlineResult, cacheSeconds int, personal bool) error {
	articles := make([]inlineArticle, 0, len(results))
	for _, r := range results {
		a := inlineArticle{Type: "article", ID: r.ID, Title: r.Title, Description: r.Description}
		a.Content.Text = r.Text
		articles = append(articles, a)
	}
	_, err := c.call(ctx, "answerInlineQuery", map[string]any{
		"inline_query_id": queryID,
		"results":         articles,
		"cache_time":      cacheSeconds,
		"is_personal":     personal,
	})
	return err
}

// SendChatAction shows a chat action such as typing.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := c.call(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": action})
	return err
}

// SendDocument uploads doc to chatID.
func (c *Client) SendDocument(ctx context.Context, chatID int64, doc bot.Document) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if doc.Caption != "" {
		w.WriteField("caption", doc.Caption)
	}
	if doc.ParseMode != bot.ParsePlain {
		w.WriteField("parse_mode", string(doc.ParseMode))
	}
	part, err := w.CreateFormFile("document", doc.Filename)
	if err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(doc.Content); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendDocument"), &buf)
	if err != nil {
		return fmt.Errorf("failed to build sendDocument request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = c.do(req, "sendDocument")
	return err
}

// SetCommands replaces the bot's command list.
func (c *Client) SetCommands(ctx context.Context, commands []bot.Command) error {
	if commands == nil {
		commands = []bot.Command{}
	}
	_, err := c.call(ctx, "setMyCommands", map[string]any{"commands": commands})
	return err
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*bot.User, error) {
	res, err := c.call(ctx, "getMe", struct{}{})
	if err != nil {
		return nil, err
	}
	return parseUser(res), nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]gjson.Result, error) {
	res, err := c.callUnlimited(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": AllowedUpdates,
	})
	if err != nil {
		return nil, err
	}
	return res.Array(), nil
}

// SetWebhook registers url for push delivery. secret is echoed back by the
// service in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := map[string]any{"url": url, "allowed_updates": AllowedUpdates}
	if secret != "" {
		params["secret_token"] = secret
	}
	_, err := c.call(ctx, "setWebhook", params)
	return err
}

// DeleteWebhook switches the bot back to polling.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", struct{}{})
	return err
}

var _ bot.Responder = (*Client)(nil)
