// Package outbox delivers outbound replies through a bounded FIFO queue with
// human-like typing simulation. A single worker drains the queue, so replies
// to any recipient leave in enqueue order.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// Default pauses around the composing indicator, jittered per message.
const (
	DefaultSubscribeDelay = 1 * time.Second
	DefaultComposingDelay = 2 * time.Second
	DefaultQueueSize      = 64
)

// Transport is the slice of the gateway client the queue needs.
type Transport interface {
	SendText(ctx context.Context, chatID, text string) error
	UpdatePresence(ctx context.Context, chatID, state string) error
}

// Presence states mirrored from the gateway.
const (
	presenceSubscribe = "subscribe"
	presenceComposing = "composing"
	presencePaused    = "paused"
)

type task struct {
	chatID string
	text   string
}

// Queue is the reply sink handed to responders. Enqueue never blocks; when
// the queue is full the reply is dropped and logged, matching the
// best-effort delivery contract.
type Queue struct {
	transport      Transport
	tasks          chan task
	logger         *slog.Logger
	subscribeDelay time.Duration
	composingDelay time.Duration
	sleep          func(ctx context.Context, d time.Duration)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithDelays overrides the typing-simulation pauses. Zero disables the
// corresponding pause.
func WithDelays(subscribe, composing time.Duration) QueueOption {
	return func(q *Queue) {
		q.subscribeDelay = subscribe
		q.composingDelay = composing
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQueue creates a queue over transport holding at most size pending
// replies. A non-positive size falls back to DefaultQueueSize.
func NewQueue(transport Transport, size int, opts ...QueueOption) (*Queue, error) {
	if transport == nil {
		return nil, errors.New("outbox: transport is required")
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		transport:      transport,
		tasks:          make(chan task, size),
		logger:         slog.Default(),
		subscribeDelay: DefaultSubscribeDelay,
		composingDelay: DefaultComposingDelay,
		sleep:          sleepCtx,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue queues one reply for delivery. Fire and forget.
func (q *Queue) Enqueue(chatID, text string) {
	select {
	case q.tasks <- task{chatID: chatID, text: text}:
	default:
		q.logger.Warn("outbox full, dropping reply", "chat", chatID)
	}
}

// Run drains the queue until ctx is cancelled. Call it from exactly one
// goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.deliver(ctx, t)
		}
	}
}

// deliver plays out the typing choreography, then sends. Presence updates
// are cosmetic; their failures never block the send.
func (q *Queue) deliver(ctx context.Context, t task) {
	q.presence(ctx, t.chatID, presenceSubscribe)
	q.sleep(ctx, delayNoise(q.subscribeDelay, 0.25))
	q.presence(ctx, t.chatID, presenceComposing)
	q.sleep(ctx, delayNoise(q.composingDelay, 0.25))
	q.presence(ctx, t.chatID, presencePaused)

	if err := q.transport.SendText(ctx, t.chatID, t.text); err != nil {
		q.logger.Error("send reply failed", "chat", t.chatID, "err", err)
	}
}

func (q *Queue) presence(ctx context.Context, chatID, state string) {
	if err := q.transport.UpdatePresence(ctx, chatID, state); err != nil {
		q.logger.Warn("presence update failed", "chat", chatID, "state", state, "err", err)
	}
}

// delayNoise jitters mean by +-noise. A noise below 1 is treated as a
// fraction of mean, otherwise as an absolute duration in nanoseconds.
func delayNoise(mean time.Duration, noise float64) time.Duration {
	if mean <= 0 {
		return 0
	}
	spread := time.Duration(noise)
	if noise < 1 {
		spread = time.Duration(float64(mean) * noise)
	}
	min := mean - spread
	if min < 0 {
		min = 0
	}
	max := mean + spread
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
