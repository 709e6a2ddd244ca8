// Package search implements vector and hybrid retrieval over stored document
// chunks. The engine scores candidate chunks against a query embedding, the
// combiner blends vector and keyword rankings into a single list.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidWeights indicates hybrid weights do not sum to 1.0.
	ErrInvalidWeights = errors.New("invalid hybrid weights")

	// ErrInvalidOptions indicates malformed search options.
	ErrInvalidOptions = errors.New("invalid search options")

	// ErrSearchTimeout indicates the search exceeded its deadline.
	ErrSearchTimeout = errors.New("search timeout")
)

// WeightTolerance is the allowed deviation of vectorWeight+keywordWeight
// from 1.0 in hybrid mode.
const WeightTolerance = 1e-6

// Scope narrows the candidate set before scoring.
type Scope struct {
	// FolderID limits candidates to documents in a folder.
	FolderID *uuid.UUID

	// DocumentID limits candidates to a single document.
	DocumentID *uuid.UUID

	// Language limits candidates to chunks in a source language (ISO 639-1).
	// Empty means all languages.
	Language string
}

// Options configures a search query.
type Options struct {
	// MaxResults is the maximum number of results to return.
	MaxResults int

	// MinSimilarity discards results scoring below this threshold (0.0-1.0).
	MinSimilarity float64

	// IncludeHighlights enables excerpt highlighting on results.
	IncludeHighlights bool

	// Hybrid blends vector similarity with keyword matching.
	Hybrid bool

	// VectorWeight and KeywordWeight control the hybrid blend.
	// They must sum to 1.0 when Hybrid is enabled.
	VectorWeight  float64
	KeywordWeight float64
}

// DefaultOptions returns sensible search defaults.
func DefaultOptions() Options {
	return Options{
		MaxResults:    10,
		MinSimilarity: 0.3,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	}
}

// Validate checks option invariants.
func (o Options) Validate() error {
	if o.MaxResults <= 0 {
		return &ValidationError{Err: ErrInvalidOptions, Field: "MaxResults", Expected: "> 0", Actual: o.MaxResults}
	}
	if o.MinSimilarity < 0 || o.MinSimilarity > 1 {
		return &ValidationError{Err: ErrInvalidOptions, Field: "MinSimilarity", Expected: "0.0-1.0", Actual: o.MinSimilarity}
	}
	if o.Hybrid {
		if err := validateWeights(o.VectorWeight, o.KeywordWeight); err != nil {
			return err
		}
	}
	return nil
}

// Result is a read-only projection joining a chunk to a relevance score.
// Results are constructed per query and never persisted.
type Result struct {
	DocumentID    uuid.UUID
	DocumentTitle string
	ChunkID       uuid.UUID
	ChunkIndex    int
	Content       string
	Highlight     string
	Similarity    float64
	PageNumber    int
	Language      string
	IsTranslated  bool

	// CreatedAt is the chunk creation time, used as a deterministic
	// tie-break for equal scores.
	CreatedAt time.Time
}

// Candidate is a stored chunk fetched from the chunk storage collaborator.
type Candidate struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	DocumentTitle string
	ChunkIndex    int
	Content       string
	Language      string
	PageNumber    int
	Embedding     []float32
	CreatedAt     time.Time
}

// KeywordHit is one keyword-match result from the keyword search collaborator.
type KeywordHit struct {
	ChunkID uuid.UUID
	Score   float64
}

// ChunkStore provides candidate chunks within a scope. Implementations own
// the underlying storage query; the engine only scores and ranks.
type ChunkStore interface {
	FetchCandidates(ctx context.Context, scope Scope) ([]Candidate, error)
}

// KeywordSearcher provides keyword-match rankings for hybrid search.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, query string, scope Scope, limit int) ([]KeywordHit, error)
}
