// Package telegram is the chat front-end: a raw-HTTP Bot API client plus
// the long-polling bot loop that maps commands, mentions and inline-keyboard
// callbacks onto the core services.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkoval/newsdesk/internal/metrics"
	"github.com/mkoval/newsdesk/internal/retry"
)

// maxMessageLength stays under Telegram's 4096-char limit with headroom for
// HTML entities.
const maxMessageLength = 4000

// Client is a minimal Telegram Bot API client over plain HTTP.
type Client struct {
	token      string
	httpClient *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			// Long polling holds the connection open for up to 30s.
			Timeout: 50 * time.Second,
		},
	}
}

// Update is one long-polling result.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Entities  []struct {
		Type   string `json:"type"`
		Offset int    `json:"offset"`
		Length int    `json:"length"`
	} `json:"entities"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

func (c *Client) apiURL(method string) string {
	return fmt.Sprintf("https://api.telegram.org/bot%s/%s", c.token, method)
}

// call posts a JSON payload to one Bot API method and decodes the result
// into out (may be nil).
func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, envelope.Description)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("error decoding result: %w", err)
		}
	}
	return nil
}

// SendMessage sends one chunk of text with retry and exponential backoff,
// returning the sent message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	var sent Message
	err := retry.WithRetry(ctx, retry.Config{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}, func() error {
		return c.call(ctx, "sendMessage", map[string]interface{}{
			"chat_id":                  chatID,
			"text":                     text,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		}, &sent)
	})
	if err != nil {
		return 0, fmt.Errorf("can't send message: %w", err)
	}

	metrics.Global.IncrementMessagesSent()
	return sent.MessageID, nil
}

// SendText sends long text split into chunks on paragraph boundaries.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range chunkText(text, maxMessageLength) {
		if _, err := c.SendMessage(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// SendMessageWithKeyboard sends text with an inline keyboard attached,
// returning the message id for callback routing.
func (c *Client) SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard InlineKeyboardMarkup) (int, error) {
	var sent Message
	err := retry.WithRetry(ctx, retry.Config{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}, func() error {
		return c.call(ctx, "sendMessage", map[string]interface{}{
			"chat_id":                  chatID,
			"text":                     text,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
			"reply_markup":             keyboard,
		}, &sent)
	})
	if err != nil {
		return 0, fmt.Errorf("can't send keyboard message: %w", err)
	}

	metrics.Global.IncrementMessagesSent()
	return sent.MessageID, nil
}

// EditMessageText rewrites a previously sent message, optionally replacing
// its keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, keyboard *InlineKeyboardMarkup) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		payload["reply_markup"] = keyboard
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// AnswerCallbackQuery acknowledges a button press so the client stops
// showing a spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackID,
		"text":              text,
	}, nil)
}

// GetUpdates long-polls for new updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]interface{}{
		"offset":          offset,
		"timeout":         30,
		"allowed_updates": []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// GetMe fetches the bot's own identity, used for mention detection.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", map[string]interface{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// chunkText splits text into pieces of at most limit bytes, preferring
// paragraph then line boundaries.
func chunkText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := lastBoundary(text[:limit])
		chunks = append(chunks, text[:cut])
		text = text[cut:]
		for len(text) > 0 && (text[0] == '\n' || text[0] == ' ') {
			text = text[1:]
		}
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

func lastBoundary(s string) int {
	for _, sep := range []string{"\n\n", "\n", " "} {
		if idx := bytes.LastIndex([]byte(s), []byte(sep)); idx > len(s)/2 {
			return idx
		}
	}
	return len(s)
}
