// Package telegram sends operator replies through the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hideapp/hide/internal/messaging"
	"github.com/hideapp/hide/internal/model"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// APIError is a request the Bot API answered with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s API error %d: %s", e.Method, e.Code, e.Description)
}

// Client implements messaging.Client.
type Client struct {
	client *resty.Client
	token  string
}

var _ messaging.Client = (*Client)(nil)

func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Client{client: c, token: token}
}

func (c *Client) SendTyping(ctx context.Context, key model.ConversationKey) error {
	return c.do(ctx, "sendChatAction", map[string]any{"chat_id": key.String(), "action": "typing"}, nil)
}

func (c *Client) SendMessage(ctx context.Context, key model.ConversationKey, text string) error {
	return c.do(ctx, "sendMessage", map[string]any{"chat_id": key.String(), "text": text}, nil)
}

// HealthPing calls getMe; it implements health.HealthPinger.
func (c *Client) HealthPing(ctx context.Context) error {
	return c.do(ctx, "getMe", nil, nil)
}

// do sends a Bot API request. Transport failures wrap messaging.ErrConnection.
func (c *Client) do(ctx context.Context, method string, payload any, result any) error {
	req := c.client.R().SetContext(ctx).SetPathParams(map[string]string{"token": c.token, "method": method})
	var (
		resp *resty.Response
		err  error
	)
	if payload == nil {
		resp, err = req.Get("/bot{token}/{method}")
	} else {
		resp, err = req.SetBody(payload).Post("/bot{token}/{method}")
	}
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w: %v", method, messaging.ErrConnection, err)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("decode telegram response (status %d): %w", resp.StatusCode(), err)
	}
	if !envelope.OK {
		if envelope.Description == "" {
			envelope.Description = "unknown error"
		}
		return &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if result != nil && envelope.Result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode telegram result for %s: %w", method, err)
		}
	}
	return nil
}
