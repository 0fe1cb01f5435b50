// Package modelserver talks to the self-hosted generation/embedding server.
// The server is treated as opaque beyond two capabilities: turning chat
// messages into text and turning text into a fixed-dimension vector. Both
// can fail; callers own the fallback policy.
package modelserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/R-N/wa-bot/internal/domain"
	"github.com/R-N/wa-bot/internal/paramstore"
)

// generateRequest is the wire shape for the generation endpoint.
type generateRequest struct {
	Model    string               `json:"model,omitempty"`
	Messages []domain.ChatMessage `json:"messages"`
}

// generateResponse tolerates the response field drifting across server
// builds; the first non-empty of response/result/reply/text wins.
type generateResponse struct {
	Response string `json:"response"`
	Result   string `json:"result"`
	Reply    string `json:"reply"`
	Text     string `json:"text"`
}

func (r generateResponse) value() string {
	for _, v := range []string{r.Response, r.Result, r.Reply, r.Text} {
		if v != "" {
			return v
		}
	}
	return ""
}

type embedRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// tokenPayload is the JSON shape stored in SSM for the server token.
type tokenPayload struct {
	Token string `json:"token"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("modelserver: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the model server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client

	getter     paramstore.Getter
	tokenParam string

	keyOnce sync.Once
	token   string
	keyErr  error
}

type Option func(*Client)

// WithModel selects a named model on servers hosting more than one.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets a static bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
		c.keyOnce.Do(func() {})
	}
}

// WithTokenParameter fetches the bearer token from the given SSM parameter on
// first use and caches it for the process lifetime.
func WithTokenParameter(getter paramstore.Getter, name string) Option {
	return func(c *Client) {
		c.getter = getter
		c.tokenParam = strings.TrimSpace(name)
	}
}

// NewClient creates a Client for the model server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("modelserver: base url must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func generateURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/generate"
}

func embedURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/embed"
}

// resolveToken returns the bearer token, fetching it from SSM at most once.
// An unset token yields "", which sends unauthenticated requests.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		if c.getter == nil || c.tokenParam == "" {
			return
		}
		c.token, c.keyErr = fetchTokenFromParamStore(ctx, c.getter, c.tokenParam)
	})
	return c.token, c.keyErr
}

// Chat sends role-tagged messages to the generation endpoint and returns the
// generated text.
func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("modelserver: messages must not be empty")
	}

	var payload generateResponse
	err := c.postJSON(ctx, generateURL(c.baseURL), generateRequest{
		Model:    c.model,
		Messages: messages,
	}, &payload)
	if err != nil {
		return "", err
	}

	out := payload.value()
	if out == "" {
		return "", errors.New("modelserver: empty generation response")
	}
	return out, nil
}

// Embed turns text into the server's fixed-dimension vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var payload embedResponse
	err := c.postJSON(ctx, embedURL(c.baseURL), embedRequest{
		Model: c.model,
		Input: text,
	}, &payload)
	if err != nil {
		return nil, err
	}
	if len(payload.Embedding) == 0 {
		return nil, errors.New("modelserver: empty embedding response")
	}
	return payload.Embedding, nil
}

func (c *Client) postJSON(ctx context.Context, url string, in, out any) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("modelserver: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("modelserver: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return fmt.Errorf("modelserver: request failed: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("modelserver: decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchTokenFromParamStore(ctx context.Context, getter paramstore.Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("modelserver: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		// Plain-string parameters are accepted too.
		return strings.TrimSpace(raw), nil
	}
	if tp.Token == "" {
		return "", errors.New("modelserver: token parameter is empty")
	}
	return tp.Token, nil
}
