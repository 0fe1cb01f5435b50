// Package qdrant implements the retrieval index over a Qdrant collection.
// Points are keyed by article id: the payload's doc_id names the
// knowledge-base document a vector belongs to, falling back to the point id
// itself when absent.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/R-N/wa-bot/internal/retrieval"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant server address (e.g. "http://localhost:6334").
	URL string

	// CollectionName is the collection to search.
	CollectionName string

	// APIKey is an optional API key for authentication.
	APIKey string
}

// Client implements retrieval.Index for Qdrant.
type Client struct {
	client         *qdrant.Client
	collectionName string
}

// New creates a Qdrant-backed index client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: url is required")
	}
	if cfg.CollectionName == "" {
		return nil, errors.New("qdrant: collection name is required")
	}

	parsedURL := cfg.URL
	if !strings.HasPrefix(parsedURL, "http://") && !strings.HasPrefix(parsedURL, "https://") {
		parsedURL = "http://" + parsedURL
	}
	u, err := url.Parse(parsedURL)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse url: %w", err)
	}

	host := u.Hostname()
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid port: %w", err)
		}
		port = p
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}

	return &Client{
		client:         qdrantClient,
		collectionName: cfg.CollectionName,
	}, nil
}

// Search implements retrieval.Index. Results arrive ordered by score
// descending as Qdrant ranks them; threshold filtering is the caller's job.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]retrieval.IndexHit, error) {
	limitUint64 := uint64(limit)
	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitUint64,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]retrieval.IndexHit, 0, len(points))
	for _, point := range points {
		hits = append(hits, retrieval.IndexHit{
			ArticleID: articleID(point),
			Score:     point.Score,
		})
	}
	return hits, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func articleID(point *qdrant.ScoredPoint) string {
	if point.Payload != nil {
		if v, ok := point.Payload["doc_id"]; ok {
			if s := v.GetStringValue(); s != "" {
				return s
			}
		}
	}
	if point.Id != nil {
		if id := point.Id.GetUuid(); id != "" {
			return id
		}
		if num := point.Id.GetNum(); num != 0 {
			return strconv.FormatUint(num, 10)
		}
	}
	return ""
}
