package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, s.err
}

type stubIndex struct {
	hits     []IndexHit
	err      error
	gotLimit int
}

func (s *stubIndex) Search(_ context.Context, _ []float32, limit int) ([]IndexHit, error) {
	s.gotLimit = limit
	return s.hits, s.err
}

type stubProvider struct {
	articles map[string]Article
	err      error
}

func (s *stubProvider) Fetch(_ context.Context, id string) (Article, error) {
	if s.err != nil {
		return Article{}, s.err
	}
	a, ok := s.articles[id]
	if !ok {
		return Article{}, errors.New("not found")
	}
	return a, nil
}

func newTestEngine(t *testing.T, e Embedder, i Index, p ContentProvider, opts ...EngineOption) *Engine {
	t.Helper()
	engine, err := NewEngine(e, i, p, opts...)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_Validates(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{0.1}}
	idx := &stubIndex{}
	prov := &stubProvider{}

	_, err := NewEngine(nil, idx, prov)
	require.Error(t, err)
	_, err = NewEngine(emb, nil, prov)
	require.Error(t, err)
	_, err = NewEngine(emb, idx, nil)
	require.Error(t, err)
}

func TestSearch_FiltersByThresholdAndResolvesContent(t *testing.T) {
	idx := &stubIndex{hits: []IndexHit{
		{ArticleID: "doc-1", Score: 0.72},
		{ArticleID: "doc-2", Score: 0.50}, // at the threshold: dropped
		{ArticleID: "doc-3", Score: 0.40},
	}}
	prov := &stubProvider{articles: map[string]Article{
		"doc-1": {ID: "doc-1", Content: "Nasi goreng adalah...", Meta: ArticleMeta{Public: true, URL: "https://kb/doc-1"}},
	}}
	engine := newTestEngine(t, &stubEmbedder{vec: []float32{0.1, 0.2}}, idx, prov)

	hits, err := engine.Search(context.Background(), "Apa itu nasi goreng?")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "doc-1", hits[0].ID)
	require.InDelta(t, 0.72, hits[0].Score, 1e-6)
	require.Equal(t, "Nasi goreng adalah...", hits[0].Content)
	require.Equal(t, DefaultLimit, idx.gotLimit)
}

func TestSearch_NoHitAboveThresholdIsEmptyNotError(t *testing.T) {
	idx := &stubIndex{hits: []IndexHit{{ArticleID: "doc-1", Score: 0.3}}}
	engine := newTestEngine(t, &stubEmbedder{vec: []float32{0.1}}, idx, &stubProvider{})

	hits, err := engine.Search(context.Background(), "tidak ada")
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearch_EmbedFailurePropagates(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{err: errors.New("embed down")}, &stubIndex{}, &stubProvider{})

	_, err := engine.Search(context.Background(), "q")
	require.ErrorContains(t, err, "embed down")
}

func TestSearch_IndexFailurePropagates(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{vec: []float32{0.1}}, &stubIndex{err: errors.New("qdrant down")}, &stubProvider{})

	_, err := engine.Search(context.Background(), "q")
	require.ErrorContains(t, err, "qdrant down")
}

func TestSearch_FetchFailurePropagates(t *testing.T) {
	idx := &stubIndex{hits: []IndexHit{{ArticleID: "doc-1", Score: 0.9}}}
	engine := newTestEngine(t, &stubEmbedder{vec: []float32{0.1}}, idx, &stubProvider{err: errors.New("kb down")})

	_, err := engine.Search(context.Background(), "q")
	require.ErrorContains(t, err, "kb down")
}

func TestSearch_Options(t *testing.T) {
	idx := &stubIndex{hits: []IndexHit{{ArticleID: "doc-1", Score: 0.45}}}
	prov := &stubProvider{articles: map[string]Article{"doc-1": {ID: "doc-1"}}}
	engine := newTestEngine(t, &stubEmbedder{vec: []float32{0.1}}, idx, prov,
		WithLimit(5), WithScoreThreshold(0.4))

	hits, err := engine.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 5, idx.gotLimit)
}
