// Package retrieval turns a query text into grounded knowledge-base
// articles: embed the query, run nearest-neighbor search, keep hits above
// the similarity threshold, and resolve each surviving hit into full
// content and metadata.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DefaultLimit is the number of neighbors requested from the index.
	DefaultLimit = 3

	// DefaultScoreThreshold drops hits at or below this similarity.
	DefaultScoreThreshold = 0.5
)

// ArticleMeta carries the article metadata the responder builds footers from.
type ArticleMeta struct {
	Public     bool   `json:"public"`
	URL        string `json:"url,omitempty"`
	RequestURL string `json:"request,omitempty"`
}

// Article is a resolved knowledge-base document.
type Article struct {
	ID      string
	Title   string
	Content string
	Meta    ArticleMeta
}

// Hit is an article together with its similarity score in [0,1].
type Hit struct {
	Article
	Score float32
}

// IndexHit is a raw nearest-neighbor result before content resolution.
type IndexHit struct {
	ArticleID string
	Score     float32
}

// Embedder turns text into the index's fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index runs nearest-neighbor search, returning hits ordered by score
// descending as the underlying index ranks them.
type Index interface {
	Search(ctx context.Context, vector []float32, limit int) ([]IndexHit, error)
}

// ContentProvider resolves an article id into content and metadata.
type ContentProvider interface {
	Fetch(ctx context.Context, id string) (Article, error)
}

// Engine composes embedding, vector search, and content resolution.
type Engine struct {
	embedder  Embedder
	index     Index
	provider  ContentProvider
	limit     int
	threshold float32
}

type EngineOption func(*Engine)

// WithLimit overrides the neighbor count requested from the index.
func WithLimit(limit int) EngineOption {
	return func(e *Engine) {
		if limit > 0 {
			e.limit = limit
		}
	}
}

// WithScoreThreshold overrides the similarity cutoff.
func WithScoreThreshold(threshold float32) EngineOption {
	return func(e *Engine) {
		e.threshold = threshold
	}
}

// NewEngine creates an Engine over the given capabilities.
func NewEngine(embedder Embedder, index Index, provider ContentProvider, opts ...EngineOption) (*Engine, error) {
	if embedder == nil {
		return nil, errors.New("retrieval: embedder must not be nil")
	}
	if index == nil {
		return nil, errors.New("retrieval: index must not be nil")
	}
	if provider == nil {
		return nil, errors.New("retrieval: content provider must not be nil")
	}
	e := &Engine{
		embedder:  embedder,
		index:     index,
		provider:  provider,
		limit:     DefaultLimit,
		threshold: DefaultScoreThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search retrieves the articles most similar to query, ordered by score
// descending. Hits scoring at or below the threshold are dropped; when
// nothing clears it the result is empty, not an error. Embedding, index, and
// fetch failures propagate to the caller; this layer has no content to
// degrade to.
func (e *Engine) Search(ctx context.Context, query string) ([]Hit, error) {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	raw, err := e.index.Search(ctx, vector, e.limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: index search: %w", err)
	}

	hits := make([]Hit, 0, len(raw))
	for _, r := range raw {
		if r.Score <= e.threshold {
			continue
		}
		article, err := e.provider.Fetch(ctx, r.ArticleID)
		if err != nil {
			return nil, fmt.Errorf("retrieval: fetch article %q: %w", r.ArticleID, err)
		}
		hits = append(hits, Hit{Article: article, Score: r.Score})
	}
	return hits, nil
}
