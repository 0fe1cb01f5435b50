// Package dispatch routes inbound messages through an ordered chain of
// responders. Responders are registered at startup, ordered by priority, and
// invoked until one reports the message handled.
package dispatch

import (
	"context"
	"log/slog"
	"sort"

	"github.com/R-N/wa-bot/internal/domain"
)

// Handler is the responder contract. Returning handled stops the chain; an
// error is logged and treated as not handled so the chain continues.
type Handler interface {
	Handle(ctx context.Context, msg domain.Message) (bool, error)
}

type registration struct {
	name     string
	priority int
	handler  Handler
}

// Registry holds the responder chain. Not safe for concurrent registration;
// register everything before dispatching.
type Registry struct {
	handlers []registration
	logger   *slog.Logger
}

// NewRegistry creates an empty chain.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a responder. Higher priority runs first; responders with
// equal priority keep their registration order.
func (r *Registry) Register(name string, priority int, h Handler) {
	r.handlers = append(r.handlers, registration{name: name, priority: priority, handler: h})
	sort.SliceStable(r.handlers, func(i, j int) bool {
		return r.handlers[i].priority > r.handlers[j].priority
	})
	r.logger.Info("registered message handler", "name", name, "priority", priority)
}

// Len reports how many responders are registered.
func (r *Registry) Len() int {
	return len(r.handlers)
}

// Dispatch runs the chain for one message and reports whether any responder
// handled it. A responder error does not break the chain.
func (r *Registry) Dispatch(ctx context.Context, msg domain.Message) bool {
	for _, reg := range r.handlers {
		handled, err := reg.handler.Handle(ctx, msg)
		if err != nil {
			r.logger.Error("message handler failed", "name", reg.name, "chat", msg.ChatID, "err", err)
			continue
		}
		if handled {
			return true
		}
	}
	return false
}
