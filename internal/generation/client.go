// Package generation turns chat history into model replies. A Client binds a
// chat backend to a single role prompt; the answer bot and the query rewriter
// are two instances of the same type with different roles.
package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/R-N/wa-bot/internal/domain"
)

var (
	// ErrInvalidConfig indicates a missing chat backend.
	ErrInvalidConfig = errors.New("generation: chat caller is required")
	// ErrEmptyReply indicates the model produced no usable text.
	ErrEmptyReply = errors.New("generation: model returned an empty reply")
)

// ChatCaller is the slice of the model server client this package needs.
type ChatCaller interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// Getter fetches a parameter value by name, typically from Parameter Store.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client generates replies for one role.
type Client struct {
	caller ChatCaller
	role   string
}

// NewClient returns a Client speaking through caller with the given role
// prompt. The role may be empty, in which case no system message is sent.
func NewClient(caller ChatCaller, role string) (*Client, error) {
	if caller == nil {
		return nil, ErrInvalidConfig
	}
	return &Client{caller: caller, role: role}, nil
}

// Reply generates a response to the conversation so far. When article is
// non-empty it is injected into the system prompt as grounding material.
func (c *Client) Reply(ctx context.Context, history []domain.HistoryEntry, article string) (string, error) {
	messages := BuildMessages(c.role, article, history)
	reply, err := c.caller.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generation: chat: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// LoadRole resolves the role prompt for a client. A parameter name takes
// precedence over a file path; with neither set the role is empty.
func LoadRole(ctx context.Context, getter Getter, paramName, filePath string) (string, error) {
	switch {
	case paramName != "":
		if getter == nil {
			return "", errors.New("generation: parameter getter is required to load role from parameter store")
		}
		role, err := getter.GetParameter(ctx, paramName)
		if err != nil {
			return "", fmt.Errorf("generation: load role parameter %q: %w", paramName, err)
		}
		return role, nil
	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("generation: load role file %q: %w", filePath, err)
		}
		return string(data), nil
	default:
		return "", nil
	}
}
