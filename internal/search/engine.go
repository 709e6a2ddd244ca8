package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/campushub/docsearch/internal/logger"
	"github.com/campushub/docsearch/internal/vector"
)

// Engine performs nearest-neighbour retrieval over stored chunk embeddings.
// It is read-only and safe for concurrent use.
type Engine struct {
	store     ChunkStore
	keyword   KeywordSearcher
	validator *vector.Validator
}

// NewEngine creates a search engine. The keyword searcher is optional; when
// nil, hybrid search degrades to vector-only ranking.
func NewEngine(store ChunkStore, keyword KeywordSearcher, validator *vector.Validator) *Engine {
	return &Engine{
		store:     store,
		keyword:   keyword,
		validator: validator,
	}
}

// Search retrieves candidates within scope, scores each against the query
// embedding, discards those below opts.MinSimilarity, sorts descending by
// similarity (ties broken by chunk creation order, earliest first) and
// truncates to opts.MaxResults. A scope yielding zero chunks returns an
// empty list, not an error.
func (e *Engine) Search(ctx context.Context, queryEmbedding []float32, scope Scope, opts Options) ([]Result, error) {
	if err := e.validator.Validate(queryEmbedding); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	results, err := e.scoreCandidates(ctx, queryEmbedding, scope, opts.MinSimilarity)
	if err != nil {
		return nil, err
	}
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	logger.Debug("Vector search results: %d", len(results))
	return results, nil
}

// HybridSearch runs the vector leg and the keyword leg, then blends them
// with the configured weights. Without a keyword searcher, or when hybrid
// mode is off, it is equivalent to Search.
func (e *Engine) HybridSearch(ctx context.Context, query string, queryEmbedding []float32, scope Scope, opts Options) ([]Result, error) {
	if !opts.Hybrid || e.keyword == nil {
		return e.Search(ctx, queryEmbedding, scope, opts)
	}
	if err := e.validator.Validate(queryEmbedding); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// The vector leg scores every candidate in scope so the combiner sees
	// the full set; the caller's threshold applies to the blended score.
	vectorResults, err := e.scoreCandidates(ctx, queryEmbedding, scope, -2)
	if err != nil {
		return nil, err
	}

	keywordHits, err := e.keyword.KeywordSearch(ctx, query, scope, opts.MaxResults*4)
	if err != nil {
		if ctxErr := mapContextErr(err); errors.Is(ctxErr, ErrSearchTimeout) || errors.Is(err, context.Canceled) {
			return nil, ctxErr
		}
		// Degrade to vector-only when the keyword collaborator fails.
		logger.Warn("Keyword search failed, using vector results only: %v", err)
		keywordHits = nil
	}
	logger.Debug("Hybrid legs: vector=%d keyword=%d", len(vectorResults), len(keywordHits))

	combined, err := Combine(vectorResults, keywordHits, opts.VectorWeight, opts.KeywordWeight)
	if err != nil {
		return nil, err
	}

	filtered := combined[:0]
	for _, r := range combined {
		if r.Similarity >= opts.MinSimilarity {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > opts.MaxResults {
		filtered = filtered[:opts.MaxResults]
	}
	if opts.IncludeHighlights {
		for i := range filtered {
			filtered[i].Highlight = highlight(filtered[i].Content, query)
		}
	}
	return filtered, nil
}

// scoreCandidates fetches the scoped candidate set and returns all chunks
// scoring at least minSimilarity, sorted by the standard comparator.
func (e *Engine) scoreCandidates(ctx context.Context, queryEmbedding []float32, scope Scope, minSimilarity float64) ([]Result, error) {
	logger.Section("Vector Scoring")
	logger.Debug("Scope: folder=%v doc=%v lang=%q", scope.FolderID, scope.DocumentID, scope.Language)

	candidates, err := e.store.FetchCandidates(ctx, scope)
	if err != nil {
		return nil, mapContextErr(err)
	}
	logger.Debug("Candidates: %d", len(candidates))

	results := make([]Result, 0, len(candidates))
	for i, c := range candidates {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, mapContextErr(err)
			}
		}
		sim, err := vector.CosineSimilarity(queryEmbedding, c.Embedding)
		if err != nil {
			// Stored rows with a bad embedding are skipped, not fatal.
			logger.Warn("Skipping chunk %s: %v", c.ChunkID, err)
			continue
		}
		if sim < minSimilarity {
			continue
		}
		results = append(results, resultFromCandidate(c, sim))
	}

	sortResults(results)
	return results, nil
}

func resultFromCandidate(c Candidate, similarity float64) Result {
	return Result{
		DocumentID:    c.DocumentID,
		DocumentTitle: c.DocumentTitle,
		ChunkID:       c.ChunkID,
		ChunkIndex:    c.ChunkIndex,
		Content:       c.Content,
		Similarity:    similarity,
		PageNumber:    c.PageNumber,
		Language:      c.Language,
		CreatedAt:     c.CreatedAt,
	}
}

// sortResults orders by similarity descending; equal scores fall back to
// chunk creation order (earliest first), then chunk index, then id, so the
// ranking is a deterministic total order.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.ChunkID.String() < b.ChunkID.String()
	})
}

// mapContextErr surfaces deadline expiry as ErrSearchTimeout. The caller
// decides whether to retry; the engine never retries internally.
func mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrSearchTimeout, err)
	}
	return err
}
