package responder

import (
	"context"
	"errors"
	"strings"

	"github.com/R-N/wa-bot/internal/domain"
)

// Echo repeats the incoming text back to the chat. Useful for verifying the
// transport and the dispatch chain end to end; disabled by default.
type Echo struct {
	sessions Sessions
	sink     ReplySink
}

// NewEcho builds the echo handler.
func NewEcho(sessions Sessions, sink ReplySink) (*Echo, error) {
	if sessions == nil || sink == nil {
		return nil, errors.New("responder: sessions and sink are required")
	}
	return &Echo{sessions: sessions, sink: sink}, nil
}

// Handle replies with the message text verbatim. Messages without text fall
// through to the next responder.
func (e *Echo) Handle(ctx context.Context, msg domain.Message) (bool, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return false, nil
	}
	e.sink.Enqueue(msg.ChatID, msg.Text)
	e.sessions.AppendReply(ctx, msg.Key(), msg.Text)
	return true, nil
}
