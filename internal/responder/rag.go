// Package responder holds the pluggable message handlers: the
// retrieval-augmented answer pipeline and the diagnostic echo handler.
package responder

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/R-N/wa-bot/internal/domain"
	"github.com/R-N/wa-bot/internal/retrieval"
)

// Fallback replies sent when the knowledge base cannot produce an answer.
const (
	ReplyNotFound     = "Maaf, saya tidak menemukan jawaban."
	ReplySearchFailed = "Gagal mencari jawaban dari basis pengetahuan."
)

// Searcher runs a similarity search over the knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string) ([]retrieval.Hit, error)
}

// Generator produces a model reply for a conversation, optionally grounded
// on an article.
type Generator interface {
	Reply(ctx context.Context, history []domain.HistoryEntry, article string) (string, error)
}

// Sessions is the slice of the session manager the responders need.
type Sessions interface {
	History(ctx context.Context, senderID, groupID string) []domain.HistoryEntry
	AppendReply(ctx context.Context, key domain.ConversationKey, text string)
}

// ReplySink accepts outbound replies for fire-and-forget delivery.
type ReplySink interface {
	Enqueue(chatID, text string)
}

// RAG answers messages by retrieving the best-matching knowledge article and
// rewriting it through the generative model. Every network-dependent step has
// a degraded branch, so once a message carries text the handler always
// replies with something and reports handled.
type RAG struct {
	search   Searcher
	answer   Generator
	rewriter Generator
	sessions Sessions
	sink     ReplySink
	logger   *slog.Logger
}

// Option configures a RAG handler.
type Option func(*RAG)

// WithQueryRewriter enables the two-stage variant: before searching, the
// user-authored turns of the conversation are condensed into a standalone
// retrieval query by g.
func WithQueryRewriter(g Generator) Option {
	return func(r *RAG) { r.rewriter = g }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *RAG) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRAG builds the handler. search, answer, sessions and sink are required.
func NewRAG(search Searcher, answer Generator, sessions Sessions, sink ReplySink, opts ...Option) (*RAG, error) {
	if search == nil || answer == nil || sessions == nil || sink == nil {
		return nil, errors.New("responder: search, answer, sessions and sink are required")
	}
	r := &RAG{
		search:   search,
		answer:   answer,
		sessions: sessions,
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Handle implements the dispatch handler contract. A message without text is
// not handled and falls through to the next responder in the chain.
func (r *RAG) Handle(ctx context.Context, msg domain.Message) (bool, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return false, nil
	}

	history := r.sessions.History(ctx, msg.SenderID, msg.GroupID)

	query := text
	if r.rewriter != nil {
		query = r.rewriteQuery(ctx, history, text)
	}

	hits, err := r.search.Search(ctx, query)
	if err != nil {
		r.logger.Error("knowledge base search failed",
			"err", newError(ErrorRetrievalFailed, "similarity search", err), "chat", msg.ChatID)
		r.reply(ctx, msg, ReplySearchFailed)
		return true, nil
	}
	if len(hits) == 0 {
		r.logger.Info("no article above score threshold",
			"code", ErrorEmptyRetrieval, "chat", msg.ChatID, "query", query)
		r.reply(ctx, msg, ReplyNotFound)
		return true, nil
	}

	article := hits[0].Article
	content := strings.TrimSpace(article.Content)
	footer := articleFooter(article.Meta)

	generated, err := r.answer.Reply(ctx, history, content)
	if err != nil {
		// Retrieval is the answer floor: ship the raw article when the
		// model cannot rewrite it.
		r.logger.Error("falling back to raw article",
			"err", newError(ErrorGenerationFailed, "answer generation", err), "chat", msg.ChatID, "article", article.ID)
		r.reply(ctx, msg, content+footer)
		return true, nil
	}

	r.reply(ctx, msg, generated+footer)
	return true, nil
}

// rewriteQuery condenses the user-authored side of the conversation into one
// retrieval query. Agent turns are excluded so the model rewrites what the
// user asked, not what the agent already answered. On rewrite failure the
// raw user turns are concatenated instead.
func (r *RAG) rewriteQuery(ctx context.Context, history []domain.HistoryEntry, text string) string {
	userTurns := make([]domain.HistoryEntry, 0, len(history))
	for _, entry := range history {
		if !entry.FromAgent() {
			userTurns = append(userTurns, entry)
		}
	}
	if len(userTurns) == 0 {
		return text
	}

	query, err := r.rewriter.Reply(ctx, userTurns, "")
	if err != nil {
		r.logger.Warn("query rewrite failed, using raw history", "err", err)
		return concatTurns(userTurns)
	}
	return query
}

func concatTurns(turns []domain.HistoryEntry) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if text := strings.TrimSpace(t.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func (r *RAG) reply(ctx context.Context, msg domain.Message, text string) {
	r.sink.Enqueue(msg.ChatID, text)
	r.sessions.AppendReply(ctx, msg.Key(), text)
}

// articleFooter builds the link trailer appended to every answer derived
// from an article. The read-more link is included only for public articles.
func articleFooter(meta retrieval.ArticleMeta) string {
	var b strings.Builder
	if meta.Public {
		b.WriteString("\n\nBaca lebih lanjut: \n" + meta.URL + "\n")
	}
	if meta.RequestURL != "" {
		b.WriteString("\nLink form request: \n" + meta.RequestURL + "\n")
	}
	return b.String()
}
