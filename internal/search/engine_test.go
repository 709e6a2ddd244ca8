package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/docsearch/internal/vector"
)

// fakeChunkStore serves a fixed candidate set, optionally filtered by scope.
type fakeChunkStore struct {
	candidates []Candidate
	err        error
	calls      int
}

func (f *fakeChunkStore) FetchCandidates(ctx context.Context, scope Scope) ([]Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Candidate
	for _, c := range f.candidates {
		if scope.Language != "" && c.Language != scope.Language {
			continue
		}
		if scope.DocumentID != nil && c.DocumentID != *scope.DocumentID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type fakeKeywordSearcher struct {
	hits []KeywordHit
	err  error
}

func (f *fakeKeywordSearcher) KeywordSearch(ctx context.Context, query string, scope Scope, limit int) ([]KeywordHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func candidate(docID uuid.UUID, index int, embedding []float32, createdAt time.Time) Candidate {
	return Candidate{
		ChunkID:       uuid.New(),
		DocumentID:    docID,
		DocumentTitle: "doc",
		ChunkIndex:    index,
		Content:       "chunk content",
		Language:      "en",
		Embedding:     embedding,
		CreatedAt:     createdAt,
	}
}

func newTestEngine(store ChunkStore, keyword KeywordSearcher) *Engine {
	return NewEngine(store, keyword, vector.NewValidator(4))
}

func TestSearchEndToEnd(t *testing.T) {
	docID := uuid.New()
	now := time.Now()
	store := &fakeChunkStore{candidates: []Candidate{
		candidate(docID, 0, []float32{1, 0, 0, 0}, now),
		candidate(docID, 1, []float32{0, 1, 0, 0}, now),
	}}
	engine := newTestEngine(store, nil)

	opts := DefaultOptions()
	opts.MinSimilarity = 0.5
	opts.MaxResults = 10

	results, err := engine.Search(context.Background(), []float32{1, 0, 0, 0}, Scope{}, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

func TestSearchRejectsInvalidEmbedding(t *testing.T) {
	engine := newTestEngine(&fakeChunkStore{}, nil)
	_, err := engine.Search(context.Background(), []float32{1, 0}, Scope{}, DefaultOptions())
	assert.ErrorIs(t, err, vector.ErrInvalidEmbedding)
}

func TestSearchRejectsBadOptions(t *testing.T) {
	engine := newTestEngine(&fakeChunkStore{}, nil)

	opts := DefaultOptions()
	opts.MaxResults = 0
	_, err := engine.Search(context.Background(), []float32{1, 0, 0, 0}, Scope{}, opts)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	opts = DefaultOptions()
	opts.MinSimilarity = 1.5
	_, err = engine.Search(context.Background(), []float32{1, 0, 0, 0}, Scope{}, opts)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestSearchEmptyScopeReturnsEmptyList(t *testing.T) {
	engine := newTestEngine(&fakeChunkStore{}, nil)
	results, err := engine.Search(context.Background(), []float32{1, 0, 0, 0}, Scope{}, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRespectsMaxResults(t *testing.T) {
	docID := uuid.New()
	now := time.Now()
	store := &fakeChunkStore{}
	for i := 0; i < 20; i++ {
		store.candidates = append(store.candidates, candidate(docID, i, []float32{1, 0, 0, 0}, now.Add(time.Duration(i)*time.Second)))
	}
	engine := newTestEngine(store, nil)

	opts := DefaultOptions()
	opts.MaxResults = 7
	opts.MinSimilarity = 0

	results, err := engine.Search(context.Background(), []float32{1, 0, 0, 0}, Scope{}, opts)
	require.NoError(t, err)
	assert.Len(t, results, 7)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, opts.MinSimilarity)
	}
}

func TestSearchSortedWithStableTieBreak(t *testing.T) {
	docID := uuid.New()
	base := time.Now()

	// Identical synthetic embeddings, so scores tie; the earlier-created
	// chunk must sort first.
	later := candidate(docID, 1, []float32{0.5, 0.5, 0, 0}, base.Add(time.Minute))
	earlier := candidate(docID, 0, []float32{0.5, 0.5, 0, 0}, base)
	distinct := candidate(docID, 2, []float32{1, 0, 0, 0}, base.Add(2*time.Minute))

	store := &fakeChunkStore{candidates: []Candidate{later, distinct, earlier}}
	engine := newTestEngine(store, nil)

	opts := DefaultOptions()
	opts.MinSimilarity = 0

	results, err := engine.Search(context.Background(), []float32{1, 0, 0, 0}, Scope{}, opts)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
	}
	assert.Equal(t, distinct.ChunkID, results[0].ChunkID)
	assert.Equal(t, earlier.ChunkID, results[1].ChunkID)
	assert.Equal(t, later.ChunkID, results[2].ChunkID)
}

func TestSearchLanguageScope(t *testing.T) {
	docID := uuid.New()
	now := time.Now()
	en := candidate(docID, 0, []float32{1, 0, 0, 0}, now)
	de := candidate(docID, 1, []float32{1, 0, 0, 0}, now)
	de.Language = "de"

	store := &fakeChunkStore{candidates: []Candidate{en, de}}
	engine := newTestEngine(store, nil)

	opts := DefaultOptions()
	opts.MinSimilarity = 0

	results, err := engine.Search(context.Background(), []float32{1, 0, 0, 0}, Scope{Language: "de"}, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, de.ChunkID, results[0].ChunkID)
}

func TestSearchSkipsMalformedStoredEmbedding(t *testing.T) {
	docID := uuid.New()
	now := time.Now()
	good := candidate(docID, 0, []float32{1, 0, 0, 0}, now)
	bad := candidate(docID, 1, []float32{1, 0}, now)

	store := &fakeChunkStore{candidates: []Candidate{bad, good}}
	engine := newTestEngine(store, nil)

	opts := DefaultOptions()
	opts.MinSimilarity = 0

	results, err := engine.Search(context.Background(), []float32{1, 0, 0, 0}, Scope{}, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, good.ChunkID, results[0].ChunkID)
}

func TestSearchTimeout(t *testing.T) {
	engine := newTestEngine(&fakeChunkStore{candidates: []Candidate{
		candidate(uuid.New(), 0, []float32{1, 0, 0, 0}, time.Now()),
	}}, nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := engine.Search(ctx, []float32{1, 0, 0, 0}, Scope{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrSearchTimeout)
}

func TestSearchCancellation(t *testing.T) {
	engine := newTestEngine(&fakeChunkStore{candidates: []Candidate{
		candidate(uuid.New(), 0, []float32{1, 0, 0, 0}, time.Now()),
	}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Search(ctx, []float32{1, 0, 0, 0}, Scope{}, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHybridSearchFallsBackWithoutKeywordSearcher(t *testing.T) {
	docID := uuid.New()
	store := &fakeChunkStore{candidates: []Candidate{
		candidate(docID, 0, []float32{1, 0, 0, 0}, time.Now()),
	}}
	engine := newTestEngine(store, nil)

	opts := DefaultOptions()
	opts.Hybrid = true
	opts.MinSimilarity = 0

	results, err := engine.HybridSearch(context.Background(), "query", []float32{1, 0, 0, 0}, Scope{}, opts)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestHybridSearchBlendsScores(t *testing.T) {
	docID := uuid.New()
	now := time.Now()
	a := candidate(docID, 0, []float32{1, 0, 0, 0}, now)
	b := candidate(docID, 1, []float32{0, 1, 0, 0}, now)

	store := &fakeChunkStore{candidates: []Candidate{a, b}}
	keyword := &fakeKeywordSearcher{hits: []KeywordHit{{ChunkID: b.ChunkID, Score: 1.0}}}
	engine := newTestEngine(store, keyword)

	opts := DefaultOptions()
	opts.Hybrid = true
	opts.VectorWeight = 0.5
	opts.KeywordWeight = 0.5
	opts.MinSimilarity = 0

	results, err := engine.HybridSearch(context.Background(), "query", []float32{1, 0, 0, 0}, Scope{}, opts)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// a: 0.5*1.0 + 0.5*0 = 0.5; b: 0.5*0 + 0.5*1.0 = 0.5 — tie broken by
	// creation order is equal here, so chunk index decides.
	assert.InDelta(t, 0.5, results[0].Similarity, 1e-9)
	assert.InDelta(t, 0.5, results[1].Similarity, 1e-9)
	assert.Equal(t, a.ChunkID, results[0].ChunkID)
}

func TestHybridSearchDegradesOnKeywordFailure(t *testing.T) {
	docID := uuid.New()
	store := &fakeChunkStore{candidates: []Candidate{
		candidate(docID, 0, []float32{1, 0, 0, 0}, time.Now()),
	}}
	keyword := &fakeKeywordSearcher{err: assert.AnError}
	engine := newTestEngine(store, keyword)

	opts := DefaultOptions()
	opts.Hybrid = true
	opts.MinSimilarity = 0

	results, err := engine.HybridSearch(context.Background(), "query", []float32{1, 0, 0, 0}, Scope{}, opts)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestHybridSearchHighlights(t *testing.T) {
	docID := uuid.New()
	c := candidate(docID, 0, []float32{1, 0, 0, 0}, time.Now())
	c.Content = "the mitochondria is the powerhouse of the cell"

	store := &fakeChunkStore{candidates: []Candidate{c}}
	keyword := &fakeKeywordSearcher{hits: []KeywordHit{{ChunkID: c.ChunkID, Score: 0.8}}}
	engine := newTestEngine(store, keyword)

	opts := DefaultOptions()
	opts.Hybrid = true
	opts.MinSimilarity = 0
	opts.IncludeHighlights = true

	results, err := engine.HybridSearch(context.Background(), "mitochondria", []float32{1, 0, 0, 0}, Scope{}, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Highlight, "**mitochondria**")
}
