// Package kb is the knowledge-base content provider: it resolves an article
// id coming out of the vector index into rendered document text plus the
// metadata (public link, request-form link) the responder appends to replies.
package kb

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

	"github.com/R-N/wa-bot/internal/retrieval"
)

// Config holds knowledge-base server configuration.
type Config struct {
	// BaseURL is the document server address.
	BaseURL string

	// SpaceID is the workspace the bot's articles live in.
	SpaceID string

	// Email and Password authenticate against the server. Both empty
	// means the server is open and sign-in is skipped.
	Email    string
	Password string
}

// docResponse is the rendered-document wire shape.
type docResponse struct {
	Title      string `json:"title"`
	Markdown   string `json:"markdown"`
	Properties struct {
		Public  bool   `json:"public"`
		Request string `json:"request"`
	} `json:"properties"`
}

// Client fetches rendered articles from the document server. Sign-in happens
// lazily on first use and the session cookie is reused for the process
// lifetime.
type Client struct {
	baseURL    string
	spaceID    string
	email      string
	password   string
	httpClient *http.Client

	signInOnce sync.Once
	cookie     string
	signInErr  error
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a knowledge-base client.
func New(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("kb: base url must not be empty")
	}
	if strings.TrimSpace(cfg.SpaceID) == "" {
		return nil, errors.New("kb: space id must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		spaceID:    cfg.SpaceID,
		email:      cfg.Email,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch implements retrieval.ContentProvider.
func (c *Client) Fetch(ctx context.Context, id string) (retrieval.Article, error) {
	if strings.TrimSpace(id) == "" {
		return retrieval.Article{}, errors.New("kb: article id must not be empty")
	}
	if err := c.ensureSignedIn(ctx); err != nil {
		return retrieval.Article{}, err
	}

	url := fmt.Sprintf("%s/api/workspaces/%s/docs/%s/markdown", c.baseURL, c.spaceID, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retrieval.Article{}, fmt.Errorf("kb: create request: %w", err)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return retrieval.Article{}, fmt.Errorf("kb: fetch document %q: %w", id, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return retrieval.Article{}, fmt.Errorf("kb: fetch document %q: status %d: %s", id, res.StatusCode, string(buf))
	}

	var doc docResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(&doc); err != nil {
		return retrieval.Article{}, fmt.Errorf("kb: decode document %q: %w", id, err)
	}

	return retrieval.Article{
		ID:      id,
		Title:   doc.Title,
		Content: doc.Markdown,
		Meta: retrieval.ArticleMeta{
			Public:     doc.Properties.Public,
			URL:        c.docURL(id),
			RequestURL: doc.Properties.Request,
		},
	}, nil
}

// docURL composes the human-facing link for an article.
func (c *Client) docURL(id string) string {
	return fmt.Sprintf("%s/workspace/%s/%s", c.baseURL, c.spaceID, id)
}

// ensureSignedIn signs in at most once per process. Servers without
// credentials configured skip this entirely.
func (c *Client) ensureSignedIn(ctx context.Context) error {
	if c.email == "" && c.password == "" {
		return nil
	}
	c.signInOnce.Do(func() {
		c.cookie, c.signInErr = c.signIn(ctx)
	})
	return c.signInErr
}

func (c *Client) signIn(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("kb: marshal sign-in: %w", err)
	}

	url := c.baseURL + "/api/auth/sign-in"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kb: create sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kb: sign in: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("kb: sign in: status %d", res.StatusCode)
	}

	cookies := res.Header.Values("Set-Cookie")
	if len(cookies) == 0 {
		return "", errors.New("kb: sign in: no cookies received")
	}

	// Keep only the cookie values, dropping attributes like Path and HttpOnly.
	pairs := make([]string, 0, len(cookies))
	for _, raw := range cookies {
		if i := strings.Index(raw, ";"); i >= 0 {
			raw = raw[:i]
		}
		pairs = append(pairs, strings.TrimSpace(raw))
	}
	return strings.Join(pairs, "; "), nil
}
