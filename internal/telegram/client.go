package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultAPIBase = "https://api.telegram.org"

// Sender delivers outbound replies. Implementations must be safe for
// use from the dispatch loop; a failed send is logged, never fatal.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Client is a thin Bot API client for outbound messages.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given bot token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultAPIBase,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// SendMessage posts a Markdown-formatted message to the chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal sendMessage payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build sendMessage request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "sendMessage request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return errors.Wrap(err, "failed to read sendMessage response")
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return errors.Wrapf(err, "malformed sendMessage response (status %d)", resp.StatusCode)
	}
	if !apiResp.OK {
		return errors.Errorf("sendMessage rejected (status %d): %s", resp.StatusCode, apiResp.Description)
	}
	return nil
}

// NopSender discards outbound messages. Used in dev mode without a token
// and in tests.
type NopSender struct{}

func (NopSender) SendMessage(context.Context, int64, string) error { return nil }
