package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"botdesk/internal/pkg/httpclient"
)

// DefaultAPIURL is the public Telegram Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// BotAPI is a direct Telegram Bot API client bound to one bot token.
type BotAPI struct {
	token  string
	client *httpclient.Client
}

// NewBotAPI creates a client for the bot identified by token. An empty
// baseURL selects DefaultAPIURL. Requests are not retried: a timed out
// sendMessage may still have been delivered.
func NewBotAPI(baseURL, token string) *BotAPI {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultAPIURL
	}
	return &BotAPI{
		token: token,
		client: httpclient.New().
			WithBaseURL(strings.TrimRight(baseURL, "/")).
			WithTimeout(15 * time.Second).
			WithRetries(0).
			WithHeader("Content-Type", "application/json"),
	}
}

// APIError is a non-ok answer from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Sprintf("telegram api error %d", e.Code)
	}
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// IsBlockedByUser reports whether err means the recipient blocked the bot.
func IsBlockedByUser(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 403 || strings.Contains(strings.ToLower(apiErr.Description), "bot was blocked by the user")
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Call makes a raw API call and decodes the result into out (which may be nil).
func (b *BotAPI) Call(ctx context.Context, method string, params map[string]interface{}, out interface{}) error {
	resp, err := b.client.Request().
		SetContext(ctx).
		SetBody(params).
		Post("/bot" + b.token + "/" + method)
	if err != nil {
		return fmt.Errorf("telegram API call %s failed: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return fmt.Errorf("telegram API call %s: decode response (http %d): %w", method, resp.StatusCode(), err)
	}
	if !parsed.OK {
		return &APIError{Code: parsed.ErrorCode, Description: parsed.Description}
	}
	if out != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("telegram API call %s: decode result: %w", method, err)
		}
	}
	return nil
}

// User is the subset of Telegram's User object the dashboard keeps.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// GetMe validates the token and returns the bot's own account.
func (b *BotAPI) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := b.Call(ctx, "getMe", map[string]interface{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// SendMessage sends an HTML text message and returns the new message id.
func (b *BotAPI) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup interface{}) (int, error) {
	params := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if replyMarkup != nil {
		params["reply_markup"] = replyMarkup
	}
	var msg struct {
		MessageID int `json:"message_id"`
	}
	if err := b.Call(ctx, "sendMessage", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SetWebhook points Telegram at url; updates carry secret in the
// X-Telegram-Bot-Api-Secret-Token header.
func (b *BotAPI) SetWebhook(ctx context.Context, url, secret string) error {
	params := map[string]interface{}{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		params["secret_token"] = secret
	}
	return b.Call(ctx, "setWebhook", params, nil)
}

// DeleteWebhook unregisters the bot's webhook.
func (b *BotAPI) DeleteWebhook(ctx context.Context) error {
	return b.Call(ctx, "deleteWebhook", map[string]interface{}{}, nil)
}

// telegramNets are the ranges Telegram sends webhooks from.
var telegramNets = mustParseCIDRs("149.154.160.0/20", "91.108.4.0/22")

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// CheckTelegramIP verifies the request originates from Telegram's IP range.
func CheckTelegramIP(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, n := range telegramNets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
