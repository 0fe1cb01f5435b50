// Package gateway is the HTTP client for the chat transport sidecar, which
// owns the WhatsApp connection and exposes send, presence and read-receipt
// primitives.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/R-N/wa-bot/internal/domain"
)

// Presence states understood by the sidecar.
const (
	PresenceSubscribe = "subscribe"
	PresenceComposing = "composing"
	PresencePaused    = "paused"
)

// ErrInvalidConfig indicates a missing base URL.
var ErrInvalidConfig = errors.New("gateway: base url is required")

type sendRequest struct {
	JID  string `json:"jid"`
	Text string `json:"text"`
}

type presenceRequest struct {
	JID   string `json:"jid"`
	State string `json:"state"`
}

type readRequest struct {
	JID         string `json:"jid"`
	MessageID   string `json:"messageId"`
	Participant string `json:"participant,omitempty"`
}

// HTTPStatusError reports a non-2xx response from the sidecar.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gateway: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to one sidecar instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New creates a Client for the sidecar at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrInvalidConfig
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendText delivers one text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	if err := c.postJSON(ctx, c.baseURL+"/send", sendRequest{JID: chatID, Text: text}); err != nil {
		return fmt.Errorf("gateway: send text: %w", err)
	}
	return nil
}

// UpdatePresence publishes a presence state for a chat.
func (c *Client) UpdatePresence(ctx context.Context, chatID, state string) error {
	if err := c.postJSON(ctx, c.baseURL+"/presence", presenceRequest{JID: chatID, State: state}); err != nil {
		return fmt.Errorf("gateway: update presence: %w", err)
	}
	return nil
}

// MarkRead sends a read receipt for an inbound message.
func (c *Client) MarkRead(ctx context.Context, msg domain.Message) error {
	req := readRequest{JID: msg.ChatID, MessageID: msg.ID}
	if msg.GroupID != "" {
		req.Participant = msg.SenderID
	}
	if err := c.postJSON(ctx, c.baseURL+"/read", req); err != nil {
		return fmt.Errorf("gateway: mark read: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}
