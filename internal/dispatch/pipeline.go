package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/R-N/wa-bot/internal/domain"
)

// SessionManager is the slice of the session layer the pipeline needs.
type SessionManager interface {
	IsAddressable(ctx context.Context, msg domain.Message) bool
	Touch(ctx context.Context, msg domain.Message)
}

// Transport marks inbound messages as read on the chat transport.
type Transport interface {
	MarkRead(ctx context.Context, msg domain.Message) error
}

// Pipeline processes inbound message batches: it filters out messages the
// agent must ignore, gates the rest on addressability, records them into the
// session, and runs the responder chain.
type Pipeline struct {
	registry  *Registry
	sessions  SessionManager
	transport Transport
	logger    *slog.Logger
}

// NewPipeline wires the pipeline. registry and sessions are required;
// transport may be nil when no read receipts should be sent.
func NewPipeline(registry *Registry, sessions SessionManager, transport Transport, logger *slog.Logger) (*Pipeline, error) {
	if registry == nil || sessions == nil {
		return nil, errors.New("dispatch: registry and sessions are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{registry: registry, sessions: sessions, transport: transport, logger: logger}, nil
}

// Process handles a batch strictly sequentially in arrival order, so two
// messages from the same conversation never race on session state.
func (p *Pipeline) Process(ctx context.Context, batch []domain.Message) {
	for _, msg := range batch {
		p.processOne(ctx, msg)
	}
}

func (p *Pipeline) processOne(ctx context.Context, msg domain.Message) {
	if msg.FromSelf || msg.Broadcast || strings.TrimSpace(msg.Text) == "" {
		return
	}

	if !p.sessions.IsAddressable(ctx, msg) {
		return
	}

	p.logger.Info("processing message", "chat", msg.ChatID, "sender", msg.SenderID)

	if p.transport != nil {
		// Read receipts are cosmetic, a transport hiccup must not block
		// the reply.
		if err := p.transport.MarkRead(ctx, msg); err != nil {
			p.logger.Warn("mark read failed", "chat", msg.ChatID, "err", err)
		}
	}

	p.sessions.Touch(ctx, msg)

	if !p.registry.Dispatch(ctx, msg) {
		p.logger.Debug("no handler claimed message", "chat", msg.ChatID)
	}
}
